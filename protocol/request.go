package protocol

import (
	"errors"
	"strings"
)

type Kind int

const (
	Malformed Kind = iota
	Get
	Upload
)

func (k Kind) String() string {
	switch k {
	case Get:
		return VerbGet
	case Upload:
		return VerbUpload
	default:
		return "MALFORMED"
	}
}

const (
	VerbGet    = "GET"
	VerbUpload = "UPLOAD"
)

var ErrMalformed = errors.New("malformed request line")

// Request is the parsed first line of a connection. Arg holds the path for
// Get and the file name for Upload; it is empty for Malformed.
type Request struct {
	Kind Kind
	Arg  string
}

func (r Request) String() string {
	if r.Kind == Malformed {
		return r.Kind.String()
	}
	return r.Kind.String() + " " + r.Arg
}

// Parse turns a request line (terminators already stripped) into a Request.
// Verbs are case sensitive. Tokens after the argument are ignored so that a
// browser's "GET /x HTTP/1.0" still resolves /x.
func Parse(line string) Request {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Request{Kind: Malformed}
	}

	switch fields[0] {
	case VerbGet:
		return Request{Kind: Get, Arg: fields[1]}
	case VerbUpload:
		return Request{Kind: Upload, Arg: fields[1]}
	}
	return Request{Kind: Malformed}
}

// Err reports ErrMalformed for a Malformed request and nil otherwise.
func (r Request) Err() error {
	if r.Kind == Malformed {
		return ErrMalformed
	}
	return nil
}
