package httpcore

import (
	"os"
	"strconv"
	"strings"

	"net11/internal/buffer"
)

func withTrailingSlash(dir string) string {
	if dir == "" || strings.HasSuffix(dir, "/") {
		return dir
	}
	return dir + "/"
}

// MatchFileResponse serves conn's request-target beneath rootDir when it
// falls under urlPrefix, mirroring original_source/net11/http.hpp's
// match_file_response byte for byte in its fault handling: a backslash
// anywhere in the path is a 500 (ambient stack: explicit response, not a
// panic, since it is attacker-controlled input rather than an internal
// contract violation); a leading dot or doubled slash in any path segment
// is treated as a potential information leak and silently misses (nil);
// a path segment that stat()s to something other than a directory misses;
// and a final component that is a directory or cannot be opened misses. A nil
// return means "not handled"; the caller should fall through to its next
// route or the default 404.
func MatchFileResponse(conn *Connection, urlPrefix, rootDir string) *Response {
	return MatchFileResponseURL(conn.URL(), rootDir, urlPrefix)
}

// MatchFileResponseURL is the pure-function core of MatchFileResponse,
// taking the request-target directly so it can be unit tested without a
// Connection.
func MatchFileResponseURL(url, rootDir, urlPrefix string) *Response {
	if !strings.HasPrefix(url, urlPrefix) {
		return nil
	}
	rootDir = withTrailingSlash(rootDir)
	checked := url[len(urlPrefix):]

	end := len(checked)
	last := byte('/')
	for i := 0; i < len(checked); i++ {
		ch := checked[i]
		if ch == '\\' {
			return NewTextResponse(500, "Bad request, \\ not allowed in url")
		}
		if ch == '?' {
			end = i
			break
		}
		if last == '/' {
			if ch == '.' {
				return nil
			}
			if ch == '/' {
				return nil
			}
		}
		if ch == '/' {
			fi, err := os.Stat(rootDir + checked[:i])
			if err != nil || !fi.IsDir() {
				return nil
			}
		}
		last = ch
	}

	path := rootDir + checked[:end]
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil
	}

	r := NewResponse(200, fileProducer(f))
	r.SetHeader("content-length", strconv.FormatInt(fi.Size(), 10))
	return r
}

// fileProducer streams f's contents into the output buffer, closing it
// once exhausted or on a read error, mirroring the fread-driven stream
// producer in original_source/net11/http.hpp's match_file_response.
func fileProducer(f *os.File) Producer {
	return func(buf *buffer.Buffer) bool {
		room := buf.Compact()
		if room == 0 {
			return true
		}
		dst := buf.ToProduce()[:room]
		n, err := f.Read(dst)
		if n > 0 {
			buf.Produced(n)
		}
		if n <= 0 || err != nil {
			f.Close()
			return false
		}
		return true
	}
}
