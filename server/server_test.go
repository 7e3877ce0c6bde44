package server

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"html"
	"io"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"go.sakib.dev/shuttle/config"
	"go.sakib.dev/shuttle/protocol"
)

const testTimeout = 10 * time.Second

type testServer struct {
	srv  *Server
	addr string
	cfg  config.Config
}

func startServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()

	cfg := config.Default()
	cfg.Port = 0
	cfg.ServeDir = t.TempDir()
	cfg.UploadDir = filepath.Join(t.TempDir(), "uploaded")
	cfg.LogFile = filepath.Join(t.TempDir(), "log", "server.log")
	if mutate != nil {
		mutate(&cfg)
	}

	srv, err := NewServer(cfg, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go func() {
		if err := srv.Serve(ln); err != nil {
			t.Errorf("Serve: %v", err)
		}
	}()
	t.Cleanup(func() { srv.Close() })

	return &testServer{srv: srv, addr: ln.Addr().String(), cfg: cfg}
}

func (ts *testServer) writeFile(t *testing.T, rel string, data []byte) {
	t.Helper()
	path := filepath.Join(ts.cfg.ServeDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func (ts *testServer) dial(t *testing.T) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", ts.addr, testTimeout)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = conn.SetDeadline(time.Now().Add(testTimeout))
	t.Cleanup(func() { conn.Close() })
	return conn
}

// get sends a GET and returns the parsed head and the body, checking that
// the body length matches Content-Length and the server closed afterwards.
func (ts *testServer) get(t *testing.T, path string) (protocol.ResponseHead, []byte) {
	t.Helper()
	return ts.request(t, "GET "+path+"\r\n")
}

func (ts *testServer) request(t *testing.T, raw string) (protocol.ResponseHead, []byte) {
	t.Helper()
	conn := ts.dial(t)
	if _, err := io.WriteString(conn, raw); err != nil {
		t.Fatalf("write request: %v", err)
	}

	r := bufio.NewReader(conn)
	head, err := protocol.ReadResponseHead(r)
	if err != nil {
		t.Fatalf("read response head: %v", err)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	conn.Close()
	n, err := head.ContentLength()
	if err != nil {
		t.Fatalf("bad Content-Length: %v", err)
	}
	if int64(len(body)) != n {
		t.Fatalf("body is %d bytes, Content-Length says %d", len(body), n)
	}
	return head, body
}

// upload runs the client side of the upload exchange and returns the
// server's signal line.
func (ts *testServer) upload(t *testing.T, name string, data []byte) string {
	t.Helper()
	conn := ts.dial(t)

	if err := protocol.WriteUploadRequest(conn, name); err != nil {
		t.Fatalf("write request: %v", err)
	}
	r := bufio.NewReader(conn)
	accepted, line, err := protocol.ReadSignal(r)
	if err != nil {
		t.Fatalf("read signal: %v", err)
	}

	if accepted {
		if _, err := conn.Write(data); err != nil {
			t.Fatalf("write body: %v", err)
		}
		if err := conn.(*net.TCPConn).CloseWrite(); err != nil {
			t.Fatalf("close write: %v", err)
		}
	}
	if _, err := io.ReadAll(r); err != nil {
		t.Fatalf("await close: %v", err)
	}
	conn.Close()
	return line
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatal(err)
	}
	return b
}

func TestGetDirectoryListing(t *testing.T) {
	ts := startServer(t, nil)
	ts.writeFile(t, "a.txt", []byte("a"))
	ts.writeFile(t, "b.bin", []byte("b"))
	ts.writeFile(t, "docs/readme.md", []byte("# hi"))

	head, body := ts.get(t, "/")
	if head.Status != protocol.StatusOK {
		t.Fatalf("status = %q", head.Status)
	}
	if ct := head.Headers[protocol.HeaderContentType]; ct != "text/html" {
		t.Errorf("Content-Type = %q", ct)
	}

	page := string(body)
	for _, want := range []string{
		`<li><b><i><a href="/docs/">docs/</a></i></b></li>`,
		`<li><a href="/a.txt">a.txt</a></li>`,
		`<li><a href="/b.bin">b.bin</a></li>`,
	} {
		if !strings.Contains(page, want) {
			t.Errorf("listing missing %s:\n%s", want, page)
		}
	}
	if n := strings.Count(page, "<li>"); n != 3 {
		t.Errorf("listing has %d entries, want 3", n)
	}
	if strings.Contains(page, "readme.md") {
		t.Errorf("listing should only contain immediate entries")
	}
}

func TestGetSubdirectoryLinks(t *testing.T) {
	ts := startServer(t, nil)
	ts.writeFile(t, "docs/readme.md", []byte("# hi"))

	// no trailing slash on the request still yields absolute links
	_, body := ts.get(t, "/docs")
	if !strings.Contains(string(body), `<a href="/docs/readme.md">readme.md</a>`) {
		t.Errorf("unexpected listing: %s", body)
	}
}

func TestGetFollowsListingLinks(t *testing.T) {
	ts := startServer(t, nil)
	ts.writeFile(t, "café.txt", []byte("accent"))
	ts.writeFile(t, "two words.txt", []byte("space"))
	ts.writeFile(t, "100%.txt", []byte("percent"))

	_, body := ts.get(t, "/")
	hrefs := regexp.MustCompile(`href="([^"]+)"`).FindAllStringSubmatch(string(body), -1)
	if len(hrefs) != 3 {
		t.Fatalf("got %d links, want 3: %s", len(hrefs), body)
	}
	for _, m := range hrefs {
		href := html.UnescapeString(m[1])
		if strings.ContainsAny(href, " ") {
			t.Errorf("link %q is not encoded", href)
		}
		if head, _ := ts.get(t, href); head.Status != protocol.StatusOK {
			t.Errorf("GET %s = %s, want %s", href, head.Status, protocol.StatusOK)
		}
	}

	// a literal percent that is not valid encoding still resolves
	if head, _ := ts.get(t, "/100%.txt"); head.Status != protocol.StatusOK {
		t.Errorf("GET /100%%.txt = %s, want %s", head.Status, protocol.StatusOK)
	}
}

func TestGetEmptyDirectory(t *testing.T) {
	ts := startServer(t, nil)
	if err := os.Mkdir(filepath.Join(ts.cfg.ServeDir, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}

	head, body := ts.get(t, "/empty/")
	if head.Status != protocol.StatusOK {
		t.Fatalf("status = %q", head.Status)
	}
	if !strings.Contains(string(body), "<ul></ul>") {
		t.Errorf("expected empty list, got %s", body)
	}
}

func TestGetNotFound(t *testing.T) {
	ts := startServer(t, nil)

	head, body := ts.get(t, "/nope/missing.txt")
	if head.Status != protocol.StatusNotFound {
		t.Fatalf("status = %q", head.Status)
	}
	if !strings.Contains(string(body), "Page Not Found") {
		t.Errorf("body = %s", body)
	}
}

func TestGetTraversalStaysInRoot(t *testing.T) {
	parent := t.TempDir()
	served := filepath.Join(parent, "served")
	if err := os.Mkdir(served, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("top secret"), 0o644); err != nil {
		t.Fatal(err)
	}
	ts := startServer(t, func(c *config.Config) { c.ServeDir = served })

	for _, p := range []string{"/../secret.txt", "../secret.txt", "/a/../../secret.txt"} {
		head, body := ts.get(t, p)
		if head.Status != protocol.StatusNotFound {
			t.Errorf("GET %s: status = %q", p, head.Status)
		}
		if bytes.Contains(body, []byte("top secret")) {
			t.Errorf("GET %s leaked a file outside the root", p)
		}
	}
}

func TestGetTextFile(t *testing.T) {
	ts := startServer(t, nil)
	ts.writeFile(t, "notes.txt", []byte("hello world"))

	head, body := ts.get(t, "/notes.txt")
	if head.Status != protocol.StatusOK {
		t.Fatalf("status = %q", head.Status)
	}
	if !strings.Contains(string(body), "<pre>hello world</pre>") {
		t.Errorf("body = %s", body)
	}
}

func TestGetTextFileIsNotEscaped(t *testing.T) {
	ts := startServer(t, nil)
	ts.writeFile(t, "page.txt", []byte("<b>bold</b> & more"))

	_, body := ts.get(t, "/page.txt")
	if !strings.Contains(string(body), "<pre><b>bold</b> & more</pre>") {
		t.Errorf("body = %s", body)
	}
}

func TestGetImageFile(t *testing.T) {
	ts := startServer(t, nil)
	img := randomBytes(t, 300)
	ts.writeFile(t, "photo.png", img)

	head, body := ts.get(t, "/photo.png")
	if head.Status != protocol.StatusOK {
		t.Fatalf("status = %q", head.Status)
	}
	want := `<img src="data:image/png;base64,` + base64.StdEncoding.EncodeToString(img) + `" alt="photo.png">`
	if !strings.Contains(string(body), want) {
		t.Errorf("image not embedded, body = %.200s", body)
	}
}

func TestGetBinaryFileIsAttachment(t *testing.T) {
	ts := startServer(t, func(c *config.Config) { c.ChunkSize = 1000 })
	data := randomBytes(t, 10_000)
	ts.writeFile(t, "archive.zip", data)

	head, body := ts.get(t, "/archive.zip")
	if head.Status != protocol.StatusOK {
		t.Fatalf("status = %q", head.Status)
	}
	if got := head.Headers[protocol.HeaderContentDisposition]; got != `attachment; filename="archive.zip"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	if got := head.Headers[protocol.HeaderContentType]; got != "application/zip" {
		t.Errorf("Content-Type = %q", got)
	}
	if !bytes.Equal(body, data) {
		t.Errorf("downloaded bytes differ from the file")
	}
}

func TestGetUnknownExtensionIsSniffed(t *testing.T) {
	ts := startServer(t, nil)
	ts.writeFile(t, "README", []byte("plain words only\n"))
	ts.writeFile(t, "blob", []byte{0x00, 0x01, 0x02, 0xff, 0xfe})

	_, body := ts.get(t, "/README")
	if !strings.Contains(string(body), "<pre>plain words only\n</pre>") {
		t.Errorf("extensionless text should be displayed, got %s", body)
	}

	head, body := ts.get(t, "/blob")
	if head.Headers[protocol.HeaderContentDisposition] == "" {
		t.Errorf("extensionless binary should be an attachment, headers = %v", head.Headers)
	}
	if !bytes.Equal(body, []byte{0x00, 0x01, 0x02, 0xff, 0xfe}) {
		t.Errorf("body = %v", body)
	}
}

func TestMalformedRequests(t *testing.T) {
	ts := startServer(t, nil)

	for _, raw := range []string{
		"FOO bar\r\n",
		"GET\r\n",
		"UPLOAD\r\n\r\n",
		"get /notes.txt\r\n",
		"\r\n",
		strings.Repeat("A", maxRequestLine+10) + "\r\n",
	} {
		head, body := ts.request(t, raw)
		if head.Status != protocol.StatusBadRequest {
			t.Errorf("%.20q: status = %q", raw, head.Status)
		}
		if string(body) != badRequestPage {
			t.Errorf("%.20q: body = %s", raw, body)
		}
	}
}

func TestPeerClosingEarlyDoesNotAffectOthers(t *testing.T) {
	ts := startServer(t, nil)
	ts.writeFile(t, "notes.txt", []byte("hello world"))

	// connect and hang up without a request, and send half a line
	ts.dial(t).Close()
	half := ts.dial(t)
	_, _ = io.WriteString(half, "GET /no")
	half.Close()

	head, _ := ts.get(t, "/notes.txt")
	if head.Status != protocol.StatusOK {
		t.Fatalf("status = %q", head.Status)
	}
}

func TestUploadAcceptedRoundTrip(t *testing.T) {
	ts := startServer(t, func(c *config.Config) { c.ChunkSize = 512 })
	data := randomBytes(t, 100_003)

	if sig := ts.upload(t, "photo.png", data); sig != protocol.SignalAccept {
		t.Fatalf("signal = %q, want %q", sig, protocol.SignalAccept)
	}

	got, err := os.ReadFile(filepath.Join(ts.cfg.UploadDir, "photo.png"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("stored %d bytes, want %d identical bytes", len(got), len(data))
	}
}

func TestUploadTextAndEmpty(t *testing.T) {
	ts := startServer(t, nil)

	if sig := ts.upload(t, "notes.txt", []byte("hello world")); sig != protocol.SignalAccept {
		t.Fatalf("signal = %q", sig)
	}
	if sig := ts.upload(t, "empty.txt", nil); sig != protocol.SignalAccept {
		t.Fatalf("signal = %q", sig)
	}

	got, _ := os.ReadFile(filepath.Join(ts.cfg.UploadDir, "notes.txt"))
	if string(got) != "hello world" {
		t.Errorf("notes.txt = %q", got)
	}
	info, err := os.Stat(filepath.Join(ts.cfg.UploadDir, "empty.txt"))
	if err != nil || info.Size() != 0 {
		t.Errorf("empty.txt: %v, %v", info, err)
	}
}

func TestUploadRejected(t *testing.T) {
	ts := startServer(t, nil)

	for _, name := range []string{"archive.zip", "program.exe", "noextension", "data.unknownext", "../evil.txt", "a/b.txt"} {
		if sig := ts.upload(t, name, []byte("should never be read")); sig != protocol.SignalReject {
			t.Errorf("UPLOAD %s: signal = %q, want %q", name, sig, protocol.SignalReject)
		}
	}

	entries, err := os.ReadDir(ts.cfg.UploadDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("rejected uploads left files behind: %v", entries)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(ts.cfg.UploadDir), "evil.txt")); !os.IsNotExist(err) {
		t.Errorf("traversal upload escaped the upload directory")
	}
}

func TestUploadWithoutBlankLineStillSignals(t *testing.T) {
	ts := startServer(t, nil)
	conn := ts.dial(t)

	if _, err := io.WriteString(conn, "UPLOAD bare.txt\r\n"); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(preambleTimeout + 3*time.Second))
	r := bufio.NewReader(conn)
	accepted, line, err := protocol.ReadSignal(r)
	if err != nil {
		t.Fatalf("read signal: %v", err)
	}
	if !accepted {
		t.Fatalf("signal = %q, want %q", line, protocol.SignalAccept)
	}

	if _, err := io.WriteString(conn, "no preamble"); err != nil {
		t.Fatal(err)
	}
	if err := conn.(*net.TCPConn).CloseWrite(); err != nil {
		t.Fatal(err)
	}
	if _, err := io.ReadAll(r); err != nil {
		t.Fatalf("await close: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(ts.cfg.UploadDir, "bare.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "no preamble" {
		t.Errorf("stored %q", got)
	}
}

func TestUploadOverwritesWithIdenticalBytes(t *testing.T) {
	ts := startServer(t, nil)
	data := randomBytes(t, 4096)
	dest := filepath.Join(ts.cfg.UploadDir, "notes.txt")

	for i := range 2 {
		if sig := ts.upload(t, "notes.txt", data); sig != protocol.SignalAccept {
			t.Fatalf("upload %d: signal = %q", i, sig)
		}
		got, err := os.ReadFile(dest)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("upload %d: stored %d bytes, want %d", i, len(got), len(data))
		}
	}

	// a shorter upload must not leave a tail of the older content
	if sig := ts.upload(t, "notes.txt", []byte("short")); sig != protocol.SignalAccept {
		t.Fatalf("signal = %q", sig)
	}
	got, _ := os.ReadFile(dest)
	if string(got) != "short" {
		t.Errorf("stored %q after shorter upload", got)
	}
}

func TestConcurrentUploads(t *testing.T) {
	ts := startServer(t, nil)
	const m = 20

	payloads := make([][]byte, m)
	for i := range payloads {
		payloads[i] = randomBytes(t, 10_000+i*997)
	}

	var wg sync.WaitGroup
	signals := make([]string, m)
	for i := range m {
		wg.Add(1)
		go func() {
			defer wg.Done()
			signals[i] = ts.upload(t, fmt.Sprintf("file-%02d.txt", i), payloads[i])
		}()
	}
	wg.Wait()

	for i := range m {
		if signals[i] != protocol.SignalAccept {
			t.Errorf("upload %d: signal = %q", i, signals[i])
			continue
		}
		got, err := os.ReadFile(filepath.Join(ts.cfg.UploadDir, fmt.Sprintf("file-%02d.txt", i)))
		if err != nil {
			t.Errorf("upload %d: %v", i, err)
			continue
		}
		if !bytes.Equal(got, payloads[i]) {
			t.Errorf("upload %d: stored %d bytes, want %d identical bytes", i, len(got), len(payloads[i]))
		}
	}
}

func TestUploadTooLargeIsDiscarded(t *testing.T) {
	ts := startServer(t, func(c *config.Config) { c.MaxUploadSize = 100 })

	conn := ts.dial(t)
	if err := protocol.WriteUploadRequest(conn, "big.txt"); err != nil {
		t.Fatal(err)
	}
	r := bufio.NewReader(conn)
	accepted, _, err := protocol.ReadSignal(r)
	if err != nil || !accepted {
		t.Fatalf("expected accept, got %v, %v", accepted, err)
	}
	_, _ = conn.Write(bytes.Repeat([]byte("x"), 1000))
	_ = conn.(*net.TCPConn).CloseWrite()
	_, _ = io.ReadAll(r)

	if _, err := os.Stat(filepath.Join(ts.cfg.UploadDir, "big.txt")); !os.IsNotExist(err) {
		t.Errorf("oversized upload should be removed, stat err = %v", err)
	}

	// a body within the limit is still accepted
	if sig := ts.upload(t, "small.txt", bytes.Repeat([]byte("y"), 100)); sig != protocol.SignalAccept {
		t.Fatalf("signal = %q", sig)
	}
	info, err := os.Stat(filepath.Join(ts.cfg.UploadDir, "small.txt"))
	if err != nil || info.Size() != 100 {
		t.Errorf("small.txt: %v, %v", info, err)
	}
}

func TestAccessLogRecords(t *testing.T) {
	ts := startServer(t, nil)
	ts.writeFile(t, "notes.txt", []byte("hello world"))

	ts.get(t, "/notes.txt")
	ts.get(t, "/missing")
	ts.request(t, "FOO bar\r\n")
	ts.upload(t, "ok.txt", []byte("fine"))
	ts.upload(t, "archive.zip", nil)

	data, err := os.ReadFile(ts.cfg.LogFile)
	if err != nil {
		t.Fatal(err)
	}
	log := string(data)
	for _, want := range []string{
		"] GET /notes.txt: text file displayed - 200 OK\n",
		"] GET /missing: page not found - 404 Not Found\n",
		`] "FOO bar": invalid request - 400 Bad Request` + "\n",
		"] UPLOAD ok.txt: ok.txt uploaded successfully - 200 OK\n",
		"] UPLOAD archive.zip: uploading archive.zip failed - 400 Bad Request\n",
	} {
		if !strings.Contains(log, want) {
			t.Errorf("access log missing %q:\n%s", want, log)
		}
	}
	if n := strings.Count(log, "\n"); n != 5 {
		t.Errorf("access log has %d records, want 5:\n%s", n, log)
	}
}

func TestIdleTimeoutClosesStalledPeer(t *testing.T) {
	ts := startServer(t, func(c *config.Config) { c.IdleTimeout = 100 * time.Millisecond })

	conn := ts.dial(t)
	start := time.Now()
	_, _ = io.ReadAll(conn)
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("stalled connection held for %v", elapsed)
	}
}

func TestBoundedServerServesSequentially(t *testing.T) {
	ts := startServer(t, func(c *config.Config) { c.MaxConns = 1 })
	ts.writeFile(t, "notes.txt", []byte("hello world"))

	for range 5 {
		head, _ := ts.get(t, "/notes.txt")
		if head.Status != protocol.StatusOK {
			t.Fatalf("status = %q", head.Status)
		}
	}
}

func TestCloseReleasesStalledConnections(t *testing.T) {
	ts := startServer(t, nil)
	conn := ts.dial(t)

	// make sure the worker has picked the connection up
	deadline := time.Now().Add(testTimeout)
	for len(ts.srv.GetState().Conns) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	done := make(chan error, 1)
	go func() { done <- ts.srv.Close() }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Close: %v", err)
		}
	case <-time.After(testTimeout):
		t.Fatal("Close did not return")
	}

	if _, err := io.ReadAll(conn); err != nil {
		t.Logf("read after close: %v", err)
	}
	if _, err := net.DialTimeout("tcp", ts.addr, time.Second); err == nil {
		t.Errorf("listener still accepting after Close")
	}
}

func TestNewServerStartupErrors(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing served dir", func(c *config.Config) { c.ServeDir = filepath.Join(t.TempDir(), "nope") }},
		{"served dir is a file", func(c *config.Config) { c.ServeDir = file }},
		{"upload dir under a file", func(c *config.Config) { c.UploadDir = filepath.Join(file, "up") }},
		{"log dir under a file", func(c *config.Config) { c.LogFile = filepath.Join(file, "log", "server.log") }},
		{"bad chunk size", func(c *config.Config) { c.ChunkSize = 0 }},
	}
	for _, tt := range tests {
		cfg := config.Default()
		cfg.ServeDir = t.TempDir()
		cfg.UploadDir = filepath.Join(t.TempDir(), "up")
		cfg.LogFile = filepath.Join(t.TempDir(), "server.log")
		tt.mutate(&cfg)

		if _, err := NewServer(cfg, nil); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestListenPortInUse(t *testing.T) {
	busy, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()

	cfg := config.Default()
	cfg.Port = busy.Addr().(*net.TCPAddr).Port
	cfg.ServeDir = t.TempDir()
	cfg.UploadDir = filepath.Join(t.TempDir(), "up")
	cfg.LogFile = filepath.Join(t.TempDir(), "server.log")

	srv, err := NewServer(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	if _, err := srv.Listen(); err == nil {
		t.Error("Listen on a busy port should fail")
	}
}

func TestEventsReachSubscriber(t *testing.T) {
	ch := make(chan ServerEventName, 64)
	cfg := config.Default()
	cfg.ServeDir = t.TempDir()
	cfg.UploadDir = filepath.Join(t.TempDir(), "up")
	cfg.LogFile = filepath.Join(t.TempDir(), "server.log")

	srv, err := NewServer(cfg, ch)
	if err != nil {
		t.Fatal(err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go srv.Serve(ln)
	defer srv.Close()

	ts := &testServer{srv: srv, addr: ln.Addr().String(), cfg: cfg}
	ts.upload(t, "notes.txt", []byte("hello"))

	seen := map[ServerEventName]bool{}
	timeout := time.After(testTimeout)
	for !(seen[EvNameConnOpen] && seen[EvNameUploadStart] && seen[EvNameConnClose]) {
		select {
		case name := <-ch:
			seen[name] = true
		case <-timeout:
			t.Fatalf("missing events, saw %v", seen)
		}
	}

	if srv.GetState().Addr == nil {
		t.Error("address was never published")
	}
}
