package dto

// ProfileImageRequest sets or clears the avatar. An empty image clears it.
type ProfileImageRequest struct {
	Image string `json:"image"`
}

// ProfileImageResponse returns the avatar data URL.
type ProfileImageResponse struct {
	Email string `json:"email"`
	Image string `json:"image"`
}
