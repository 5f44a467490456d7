package transfer

type BlueskySessionRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type BlueskySession struct {
	DID        string `json:"did"`
	Handle     string `json:"handle"`
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
}

type BlueskyBlob struct {
	Type     string          `json:"$type"`
	Ref      BlueskyBlobRef  `json:"ref"`
	MimeType string          `json:"mimeType"`
	Size     int64           `json:"size"`
}

type BlueskyBlobRef struct {
	Link string `json:"$link"`
}

type BlueskyUploadBlobResponse struct {
	Blob BlueskyBlob `json:"blob"`
}

type BlueskyServiceAuthResponse struct {
	Token string `json:"token"`
}

type BlueskyJobStatusResponse struct {
	JobStatus BlueskyJobStatus `json:"jobStatus"`
}

type BlueskyJobStatus struct {
	JobID    string       `json:"jobId"`
	State    string       `json:"state"`
	Progress int          `json:"progress"`
	Blob     *BlueskyBlob `json:"blob,omitempty"`
	Error    string       `json:"error,omitempty"`
	Message  string       `json:"message,omitempty"`
}

type BlueskyAspectRatio struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type BlueskyImageEmbed struct {
	Alt         string              `json:"alt"`
	Image       BlueskyBlob         `json:"image"`
	AspectRatio *BlueskyAspectRatio `json:"aspectRatio,omitempty"`
}

type BlueskyCreateRecordRequest struct {
	Repo       string         `json:"repo"`
	Collection string         `json:"collection"`
	Record     map[string]any `json:"record"`
}

type BlueskyCreateRecordResponse struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}
