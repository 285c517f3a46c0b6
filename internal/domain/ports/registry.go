package ports

import "streamhost/internal/domain"

// ServedFileRegistry holds the single file the streaming listener serves.
type ServedFileRegistry interface {
	Set(path string) uint64
	Get() (string, bool)
	Snapshot() domain.ServedFile
}
