package verifyflow

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	verification *Verification
	verifyErr    error
	logErr       error
	logs         atomic.Int32
	logBlock     chan struct{}
}

func (f *fakeClient) Verify(context.Context, string) (*Verification, error) {
	return f.verification, f.verifyErr
}

func (f *fakeClient) LogScan(ctx context.Context, _ string) error {
	if f.logBlock != nil {
		select {
		case <-f.logBlock:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.logs.Add(1)
	return f.logErr
}

func validClient() *fakeClient {
	return &fakeClient{verification: &Verification{
		Success: true,
		Valid:   true,
		QRCode:  &QRCode{CodeID: "abcDEF012345", WebsiteURL: "https://example.com"},
	}}
}

type recorder struct {
	mu     sync.Mutex
	states []State
	urls   []string
}

func (r *recorder) onChange(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.states); n == 0 || r.states[n-1] != s.State {
		r.states = append(r.states, s.State)
	}
}

func (r *recorder) navigate(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = append(r.urls, url)
}

func (r *recorder) navigations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.urls...)
}

func TestFlow_CountdownThenRedirect(t *testing.T) {
	client := validClient()
	rec := &recorder{}
	f := New(client, "abcDEF012345", WithCountdown(3), WithTick(time.Millisecond), WithOnChange(rec.onChange))

	require.NoError(t, f.Run(context.Background(), rec.navigate))

	assert.Equal(t, []string{"https://example.com"}, rec.navigations())
	assert.Equal(t, []State{Loading, Valid, CountingDown, Redirecting}, rec.states)
	assert.Equal(t, Redirecting, f.State())
	assert.Zero(t, f.Remaining())
	assert.Equal(t, int32(1), client.logs.Load())
}

func TestFlow_Invalid(t *testing.T) {
	client := &fakeClient{verification: &Verification{Valid: false, Message: "invalid QR code"}}
	rec := &recorder{}
	f := New(client, "zzzzzzzzzzzz", WithTick(time.Millisecond))

	err := f.Run(context.Background(), rec.navigate)
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.Equal(t, Invalid, f.State())
	assert.Equal(t, "invalid QR code", f.Message())
	assert.Empty(t, rec.navigations())
	assert.Zero(t, client.logs.Load())
}

func TestFlow_VerifyErrorUsesGenericMessage(t *testing.T) {
	client := &fakeClient{verifyErr: errors.New("connection refused")}
	f := New(client, "abcDEF012345")

	err := f.Run(context.Background(), func(string) { t.Fatal("must not navigate") })
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.Equal(t, DefaultInvalidMessage, f.Message())
}

func TestFlow_GoNowSkipsCountdown(t *testing.T) {
	rec := &recorder{}
	f := New(validClient(), "abcDEF012345", WithCountdown(60), WithTick(time.Hour))
	f.GoNow()
	f.GoNow()

	done := make(chan error, 1)
	go func() { done <- f.Run(context.Background(), rec.navigate) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("GoNow did not skip the countdown")
	}
	assert.Equal(t, []string{"https://example.com"}, rec.navigations())
}

func TestFlow_CancelDuringCountdownNeverNavigates(t *testing.T) {
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	counting := make(chan struct{})
	var once sync.Once
	f := New(validClient(), "abcDEF012345", WithCountdown(5), WithTick(50*time.Millisecond),
		WithOnChange(func(s Snapshot) {
			if s.State == CountingDown {
				once.Do(func() { close(counting) })
			}
		}))

	done := make(chan error, 1)
	go func() { done <- f.Run(ctx, rec.navigate) }()

	<-counting
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, rec.navigations())
	assert.Equal(t, CountingDown, f.State())
}

func TestFlow_LogFailureDoesNotBlockRedirect(t *testing.T) {
	client := validClient()
	client.logErr = errors.New("boom")
	rec := &recorder{}
	f := New(client, "abcDEF012345", WithCountdown(1), WithTick(time.Millisecond))

	require.NoError(t, f.Run(context.Background(), rec.navigate))
	assert.Len(t, rec.navigations(), 1)
}

func TestFlow_SlowLogDoesNotDelayNavigation(t *testing.T) {
	client := validClient()
	client.logBlock = make(chan struct{})
	rec := &recorder{}
	f := New(client, "abcDEF012345", WithCountdown(1), WithTick(time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- f.Run(context.Background(), rec.navigate) }()

	assert.Eventually(t, func() bool { return len(rec.navigations()) == 1 }, time.Second, 5*time.Millisecond)
	close(client.logBlock)
	require.NoError(t, <-done)
}

func TestFlow_RunTwice(t *testing.T) {
	f := New(validClient(), "abcDEF012345", WithCountdown(0))
	require.NoError(t, f.Run(context.Background(), func(string) {}))
	assert.ErrorIs(t, f.Run(context.Background(), func(string) {}), ErrAlreadyRun)
}

func TestHTTPClient(t *testing.T) {
	var scans atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/verify/abcDEF012345":
			_ = json.NewEncoder(w).Encode(Verification{Success: true, Valid: true,
				QRCode: &QRCode{CodeID: "abcDEF012345", WebsiteURL: "https://example.com"}})
		case r.Method == http.MethodPost && r.URL.Path == "/verify/abcDEF012345/scan":
			scans.Add(1)
			_ = json.NewEncoder(w).Encode(Verification{Success: true, Valid: true})
		case r.URL.Path == "/verify/broken000000":
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("<html>down</html>"))
		default:
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(Verification{Message: "invalid QR code"})
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", nil)
	ctx := context.Background()

	v, err := c.Verify(ctx, "abcDEF012345")
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, "https://example.com", v.QRCode.WebsiteURL)

	v, err = c.Verify(ctx, "zzzzzzzzzzzz")
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, "invalid QR code", v.Message)

	v, err = c.Verify(ctx, "broken000000")
	require.NoError(t, err)
	assert.False(t, v.Valid)

	require.NoError(t, c.LogScan(ctx, "abcDEF012345"))
	assert.Equal(t, int32(1), scans.Load())
	assert.Error(t, c.LogScan(ctx, "zzzzzzzzzzzz"))

	rec := &recorder{}
	f := New(c, "abcDEF012345", WithCountdown(1), WithTick(time.Millisecond))
	require.NoError(t, f.Run(ctx, rec.navigate))
	assert.Equal(t, []string{"https://example.com"}, rec.navigations())
	assert.Equal(t, int32(2), scans.Load())
}
