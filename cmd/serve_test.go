package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/productmatch/internal/auth"
	"github.com/example/productmatch/internal/compliance"
	"github.com/example/productmatch/internal/handlers"
	"github.com/example/productmatch/internal/matcher"
	"github.com/example/productmatch/internal/repository"
	"github.com/example/productmatch/internal/usecase"
)

// slowSearch holds every Match call until release is closed.
type slowSearch struct {
	started chan struct{}
	release chan struct{}
	got     chan []byte
}

func (s *slowSearch) Match(_ context.Context, imageBytes []byte) (*usecase.MatchResponse, error) {
	s.got <- imageBytes
	close(s.started)
	<-s.release
	return &usecase.MatchResponse{SearchID: "search-1", Result: &matcher.Result{}, Report: "No match found."}, nil
}

func (s *slowSearch) GetResult(context.Context, string) (*repository.MatchLog, error) {
	return nil, repository.ErrNotFound
}

func (s *slowSearch) Stats(context.Context) (*usecase.StatsSummary, error) {
	return &usecase.StatsSummary{}, nil
}

type fixedTerms struct{}

func (fixedTerms) Terms() compliance.Terms  { return compliance.NewTerms() }
func (fixedTerms) Reload() compliance.Terms { return compliance.NewTerms() }

func multipartImage(t *testing.T, payload []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="photo.png"`)
	header.Set("Content-Type", "image/png")
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestServerDrainsInFlightMatchOnShutdown(t *testing.T) {
	gin.SetMode(gin.TestMode)

	search := &slowSearch{
		started: make(chan struct{}),
		release: make(chan struct{}),
		got:     make(chan []byte, 1),
	}
	released := false
	defer func() {
		if !released {
			close(search.release)
		}
	}()

	router := gin.New()
	handlers.RegisterRoutes(router, search, fixedTerms{}, auth.JWTMiddleware("", ""))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	server := &http.Server{Handler: router}

	signalCh := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() {
		done <- serveHTTPServerWithOptions(server, 2*time.Second, zap.NewNop(), listener, signalCh)
	}()

	addr := listener.Addr().String()
	waitForServer(t, addr)

	var upload bytes.Buffer
	writeTestPNG(t, &upload)
	body, contentType := multipartImage(t, upload.Bytes())

	client := &http.Client{Timeout: 2 * time.Second}
	respCh := make(chan *http.Response, 1)
	errCh := make(chan error, 1)
	go func() {
		resp, err := client.Post("http://"+addr+"/match", contentType, body)
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()

	select {
	case <-search.started:
	case <-time.After(2 * time.Second):
		t.Fatal("match did not start in time")
	}
	assert.Equal(t, upload.Bytes(), <-search.got)

	signalCh <- syscall.SIGTERM

	time.Sleep(50 * time.Millisecond)
	close(search.release)
	released = true

	select {
	case resp := <-respCh:
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(raw, &decoded))
		assert.Equal(t, "search-1", decoded["search_id"])
		assert.Equal(t, "No match found.", decoded["report"])
	case err := <-errCh:
		t.Fatalf("request failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("request did not complete")
	}

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not exit after shutdown")
	}
}

func TestServerReturnsServeError(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	listener.Close()

	err = serveHTTPServerWithOptions(&http.Server{}, time.Second, zap.NewNop(), listener, make(chan os.Signal))
	assert.Error(t, err)
}

func writeTestPNG(t *testing.T, w io.Writer) {
	t.Helper()
	require.NoError(t, png.Encode(w, checkerboard(16, 4)))
}

func waitForServer(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server %s did not become ready", addr)
}
