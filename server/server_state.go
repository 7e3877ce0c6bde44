package server

import (
	"time"
)

type Direction string

const (
	DirNone     Direction = ""
	DirDownload Direction = "download"
	DirUpload   Direction = "upload"
)

type Client struct {
	IP          string
	ConnectedAt time.Time
}

type Conn struct {
	ID          string
	Client      *Client
	Direction   Direction
	Filename    string
	TotalSize   int64 // -1 when the size is not known up front
	Transferred int64
	CurSpeed    int64 // bytes per second
	UpdatedAt   time.Time
}

type ServerState struct {
	Dir   string
	Addr  *string
	Conns map[string]*Conn
}

// apply folds one event into the state. Callers hold the server mutex.
func (st *ServerState) apply(ev ServerEvent) {
	switch e := ev.(type) {
	case EventConnOpen:
		st.Conns[e.ConnID] = &Conn{ID: e.ConnID, Client: e.Client, TotalSize: -1, UpdatedAt: e.Time}
	case EventConnClose:
		delete(st.Conns, e.ConnID)
	case EventDownloadStart:
		if c, ok := st.Conns[e.ConnID]; ok {
			c.Direction = DirDownload
			c.Filename = e.FileName
			c.TotalSize = e.TotalSize
			c.UpdatedAt = e.Time
		}
	case EventUploadStart:
		if c, ok := st.Conns[e.ConnID]; ok {
			c.Direction = DirUpload
			c.Filename = e.FileName
			c.UpdatedAt = e.Time
		}
	case EventFileProgress:
		if c, ok := st.Conns[e.ConnID]; ok {
			if elapsed := e.Time.Sub(c.UpdatedAt); elapsed > 0 {
				c.CurSpeed = int64(float64(e.Transferred-c.Transferred) / elapsed.Seconds())
			}
			c.Transferred = e.Transferred
			c.UpdatedAt = e.Time
		}
	case EventAddrUpdated:
		addr := e.Addr
		st.Addr = &addr
	}
}

// snapshot copies the state so readers never race with workers.
func (st *ServerState) snapshot() ServerState {
	out := ServerState{Dir: st.Dir, Conns: make(map[string]*Conn, len(st.Conns))}
	if st.Addr != nil {
		addr := *st.Addr
		out.Addr = &addr
	}
	for id, c := range st.Conns {
		cc := *c
		out.Conns[id] = &cc
	}
	return out
}
