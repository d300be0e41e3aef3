package newsbot

import (
	"errors"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

var (
	// ErrNotAnAnnouncement is returned when a message doesn't look like a
	// previously published announcement
	ErrNotAnAnnouncement = errors.New("not an announcement")

	// ErrOptionResolution is returned when a channel or role name/ID
	// can't be found in the guild
	ErrOptionResolution = errors.New("could not resolve role or channel")

	// ErrPermissionDenied is returned when the operator isn't allowed to
	// manage announcements
	ErrPermissionDenied = errors.New("permission denied")

	// ErrMessageNotFound is returned when a message reference can't be
	// parsed or fetched
	ErrMessageNotFound = errors.New("message not found")

	ErrSessionNotFound = errors.New("session not found")
)

// ValidationError indicates a draft can't be posted as-is. Message is
// shown to the operator.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// isForbidden returns true if err is a discord REST error with a 403 status
func isForbidden(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return restErr.Response.StatusCode == http.StatusForbidden
	}
	return false
}

// isNotFound returns true if err is a discord REST error with a 404 status
func isNotFound(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return restErr.Response.StatusCode == http.StatusNotFound
	}
	return false
}
