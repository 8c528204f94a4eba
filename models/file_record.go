package models

import "time"

// Fingerprint identifies a file's content without reading it
type Fingerprint struct {
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Equal reports whether both size and modification time match exactly
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.Size == other.Size && f.ModTime.UnixNano() == other.ModTime.UnixNano()
}

// FileRecord represents the print state of one discovered file
type FileRecord struct {
	Path      string     `json:"path"`
	Size      int64      `json:"size"`
	ModTime   time.Time  `json:"mod_time"`
	Printed   bool       `json:"printed"`
	PrintedAt *time.Time `json:"printed_at,omitempty"`
}

// Fingerprint returns the stored fingerprint of the record
func (r FileRecord) Fingerprint() Fingerprint {
	return Fingerprint{Size: r.Size, ModTime: r.ModTime}
}

// PrintJob pairs a file with the printer it is sent to
type PrintJob struct {
	Path    string
	Printer string
}

// Stats summarizes the completion store
type Stats struct {
	TotalFiles    int        `json:"total_files"`
	PrintedFiles  int        `json:"printed_files"`
	PendingFiles  int        `json:"pending_files"`
	TotalSize     int64      `json:"total_size"`
	LastPrintedAt *time.Time `json:"last_printed_at,omitempty"`
	Printer       string     `json:"printer,omitempty"`
}
