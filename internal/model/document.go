package model

type Document struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	ChatID      string `json:"chat_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	StoreKey    string `json:"-"`
	Size        int64  `json:"size"`
	Chunks      int    `json:"chunks"`
	State       int    `json:"state"`
	Ctime       int64  `json:"ctime"`
	Mtime       int64  `json:"mtime"`
}
