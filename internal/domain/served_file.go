package domain

// ServedFile is a snapshot of the active-file slot. Generation increases on
// every selection so a reader can tell whether the slot changed under it.
type ServedFile struct {
	Path       string `json:"path,omitempty"`
	Generation uint64 `json:"generation"`
	Set        bool   `json:"set"`
}
