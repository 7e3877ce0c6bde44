package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const Version = "HTTP/1.0"

const (
	StatusOK         = "200 OK"
	StatusNotFound   = "404 Not Found"
	StatusBadRequest = "400 Bad Request"
)

// Accept/reject signal sent by the server before an upload body. The casing
// is part of the wire contract.
const (
	SignalAccept = "valid"
	SignalReject = "Invalid"
)

const (
	HeaderContentType        = "Content-Type"
	HeaderContentLength      = "Content-Length"
	HeaderContentDisposition = "Content-Disposition"
)

type Header struct {
	Key   string
	Value string
}

// ContentHeaders returns the two headers every response carries.
func ContentHeaders(contentType string, length int64) []Header {
	return []Header{
		{HeaderContentType, contentType},
		{HeaderContentLength, strconv.FormatInt(length, 10)},
	}
}

func AttachmentHeader(name string) Header {
	return Header{HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name)}
}

// WriteHead writes the status line, the headers and the blank line that
// separates them from the body.
func WriteHead(w io.Writer, status string, headers ...Header) error {
	var b strings.Builder
	b.WriteString(Version + " " + status + "\r\n")
	for _, h := range headers {
		b.WriteString(h.Key + ": " + h.Value + "\r\n")
	}
	b.WriteString("\r\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func WriteSignal(w io.Writer, accepted bool) error {
	signal := SignalReject
	if accepted {
		signal = SignalAccept
	}
	_, err := io.WriteString(w, signal+"\n")
	return err
}

// ReadSignal reads the one-line accept/reject answer to an upload request.
// Any line other than "valid" (case-insensitive) counts as a rejection.
func ReadSignal(r *bufio.Reader) (accepted bool, line string, err error) {
	line, err = r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return false, "", err
	}
	line = strings.TrimRight(line, "\r\n")
	return strings.EqualFold(line, SignalAccept), line, nil
}

// WriteUploadRequest sends the upload preamble. The trailing blank line
// carries no headers but is expected by the server.
func WriteUploadRequest(w io.Writer, name string) error {
	_, err := io.WriteString(w, VerbUpload+" "+name+"\r\n\r\n")
	return err
}

var ErrBadResponse = errors.New("bad response head")

// ResponseHead is a parsed status line plus headers.
type ResponseHead struct {
	Status  string
	Headers map[string]string
}

func (h ResponseHead) ContentLength() (int64, error) {
	return strconv.ParseInt(h.Headers[HeaderContentLength], 10, 64)
}

// ReadResponseHead parses what WriteHead produced, leaving r positioned at
// the first body byte.
func ReadResponseHead(r *bufio.Reader) (ResponseHead, error) {
	head := ResponseHead{Headers: map[string]string{}}

	line, err := r.ReadString('\n')
	if err != nil {
		return head, err
	}
	status, ok := strings.CutPrefix(strings.TrimRight(line, "\r\n"), Version+" ")
	if !ok {
		return head, fmt.Errorf("%w: status line %q", ErrBadResponse, line)
	}
	head.Status = status

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return head, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return head, nil
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return head, fmt.Errorf("%w: header %q", ErrBadResponse, line)
		}
		head.Headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
}
