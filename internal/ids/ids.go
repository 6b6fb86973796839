// Package ids derives the per-session object identifiers that tie avatar,
// hand and client-tag topics to one credential.
package ids

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"go.scenegrid.dev/internal/topics"
)

// privateTag is the identifier granted for capability hosts. It never
// collides with a generated id, which always carries a numeric nonce.
const privateTag = "-"

// Request selects which optional identifiers a session asked for.
type Request struct {
	Camera       bool
	HandLeft     bool
	HandRight    bool
	RenderFusion bool
	Environment  bool
}

// Avatar reports whether any avatar placeholder was requested. Conference
// claims are only added for sessions with an avatar.
func (r Request) Avatar() bool {
	return r.Camera || r.HandLeft || r.HandRight
}

// Generated is the fixed shape of the identifiers handed back to the
// client and embedded in topic grants. Optional ids are empty when not
// requested.
type Generated struct {
	UserID         string `json:"userid"`
	UserClient     string `json:"userclient"`
	CamID          string `json:"camid,omitempty"`
	HandLeftID     string `json:"handleftid,omitempty"`
	HandRightID    string `json:"handrightid,omitempty"`
	RenderFusionID string `json:"renderfusionid,omitempty"`
	EnvironmentID  string `json:"environmentid,omitempty"`
}

// New derives a fresh identifier set. The nonce makes the ids unguessable
// so one session cannot publish into another session's presence objects.
// The nonce/username order is part of each protocol version's wire format.
func New(version topics.Version, username, client string, req Request) (Generated, error) {
	nonce, err := randomNonce()
	if err != nil {
		return Generated{}, fmt.Errorf("failed to draw id nonce: %w", err)
	}

	var userID string
	switch version {
	case topics.V1:
		userID = fmt.Sprintf("%010d_%s", nonce, username)
	default:
		userID = fmt.Sprintf("%s_%010d", username, nonce)
	}

	g := Generated{
		UserID:     userID,
		UserClient: fmt.Sprintf("%s_%s", userID, client),
	}

	if req.Camera {
		if version == topics.V1 {
			g.CamID = "camera_" + userID
		} else {
			g.CamID = userID
		}
	}
	if req.HandLeft {
		g.HandLeftID = "handLeft_" + userID
	}
	if req.HandRight {
		g.HandRightID = "handRight_" + userID
	}
	if req.RenderFusion {
		g.RenderFusionID = privateTag
	}
	if req.Environment {
		g.EnvironmentID = privateTag
	}

	return g, nil
}

func randomNonce() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}
