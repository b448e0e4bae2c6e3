package reactor

import (
	"bufio"
	"io"
	"net"
	"testing"
	"time"

	"net11/internal/httpcore"
)

func startTestReactor(t *testing.T, router func(*httpcore.Connection) httpcore.Action) (addr string, closeFn func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	r := New(router, nil)
	go func() { _ = r.Serve(ln) }()
	return ln.Addr().String(), func() { ln.Close() }
}

func TestReactorServesMinimalGET(t *testing.T) {
	router := func(c *httpcore.Connection) httpcore.Action {
		return httpcore.Respond(httpcore.NewTextResponse(200, "hi"))
	}
	addr, closeFn := startTestReactor(t, router)
	defer closeFn()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	if _, err := conn.Write([]byte("GET / HTTP/1.0\r\n\r\n")); err != nil {
		t.Fatal(err)
	}
	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if line != "HTTP/1.1 200 OK\r\n" {
		t.Fatalf("status line = %q", line)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		t.Fatal(err)
	}
	if string(body[len(body)-2:]) != "hi" {
		t.Fatalf("body tail = %q", body)
	}
}

func TestReactorKeepsAliveForHTTP11(t *testing.T) {
	count := 0
	router := func(c *httpcore.Connection) httpcore.Action {
		count++
		return httpcore.Respond(httpcore.NewTextResponse(200, "ok"))
	}
	addr, closeFn := startTestReactor(t, router)
	defer closeFn()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	reader := bufio.NewReader(conn)
	for i := 0; i < 2; i++ {
		if _, err := conn.Write([]byte("GET / HTTP/1.1\r\n\r\n")); err != nil {
			t.Fatal(err)
		}
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatal(err)
			}
			if line == "\r\n" {
				break
			}
		}
		body := make([]byte, 2)
		if _, err := io.ReadFull(reader, body); err != nil {
			t.Fatal(err)
		}
		if string(body) != "ok" {
			t.Fatalf("body = %q", body)
		}
	}
	if count != 2 {
		t.Fatalf("router invoked %d times, want 2", count)
	}
}
