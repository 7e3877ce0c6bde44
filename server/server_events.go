package server

import "time"

type ServerEventName string

const (
	EvNameConnOpen      ServerEventName = "conn_open"
	EvNameConnClose     ServerEventName = "conn_close"
	EvNameDownloadStart ServerEventName = "download_start"
	EvNameUploadStart   ServerEventName = "upload_start"
	EvNameFileProgress  ServerEventName = "file_progress"
	EvNameAddrUpdated   ServerEventName = "addr_updated"
)

type EventConnOpen struct {
	ConnID string
	Client *Client
	Time   time.Time
}

type EventDownloadStart struct {
	ConnID    string
	FileName  string
	TotalSize int64
	Time      time.Time
}

type EventUploadStart struct {
	ConnID   string
	FileName string
	Time     time.Time
}

type EventConnClose struct {
	ConnID string
	Time   time.Time
}

type EventFileProgress struct {
	ConnID      string
	Transferred int64
	Time        time.Time
}

type EventAddrUpdated struct {
	Addr string
}

type ServerEvent interface {
	EventName() ServerEventName
}

func (e EventConnOpen) EventName() ServerEventName {
	return EvNameConnOpen
}
func (e EventConnClose) EventName() ServerEventName {
	return EvNameConnClose
}
func (e EventFileProgress) EventName() ServerEventName {
	return EvNameFileProgress
}
func (e EventDownloadStart) EventName() ServerEventName {
	return EvNameDownloadStart
}
func (e EventUploadStart) EventName() ServerEventName {
	return EvNameUploadStart
}
func (e EventAddrUpdated) EventName() ServerEventName {
	return EvNameAddrUpdated
}
