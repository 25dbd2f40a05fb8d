package models

import (
	"errors"
	"fmt"
	"strings"
)

const (
	maxEntityTypeLength = 191
	maxEntityIDLength   = 64

	// BaseActorKey identifies the actor-less aggregate row of an entity.
	BaseActorKey = "base"

	userKeyPrefix    = "user:"
	visitorKeyPrefix = "visitor:"
)

var (
	ErrInvalidEntity     = errors.New("invalid entity reference")
	ErrUnresolvableActor = errors.New("actor has neither user id nor visitor token")
)

// Trackable is implemented by any domain object analytics can be recorded against.
type Trackable interface {
	TrackableType() string
	TrackableID() string
}

// EntityRef is the value form of a Trackable.
type EntityRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (r EntityRef) TrackableType() string { return r.Type }
func (r EntityRef) TrackableID() string   { return r.ID }

func (r EntityRef) String() string {
	return r.Type + "#" + r.ID
}

// RefOf copies any Trackable into an EntityRef.
func RefOf(t Trackable) EntityRef {
	if t == nil {
		return EntityRef{}
	}
	if ref, ok := t.(EntityRef); ok {
		return ref
	}
	return EntityRef{Type: t.TrackableType(), ID: t.TrackableID()}
}

// ValidateEntity checks that t names a concrete entity.
func ValidateEntity(t Trackable) (EntityRef, error) {
	ref := RefOf(t)
	ref.Type = strings.TrimSpace(ref.Type)
	ref.ID = strings.TrimSpace(ref.ID)

	switch {
	case ref.Type == "" || ref.ID == "":
		return ref, fmt.Errorf("%w: type and id are required", ErrInvalidEntity)
	case len(ref.Type) > maxEntityTypeLength:
		return ref, fmt.Errorf("%w: type longer than %d characters", ErrInvalidEntity, maxEntityTypeLength)
	case len(ref.ID) > maxEntityIDLength:
		return ref, fmt.Errorf("%w: id longer than %d characters", ErrInvalidEntity, maxEntityIDLength)
	}
	return ref, nil
}

// Actor is the authenticated user or anonymous visitor behind an event.
// UserID wins when both are present.
type Actor struct {
	UserID       string `json:"userId,omitempty"`
	VisitorToken string `json:"visitorToken,omitempty"`
}

// UserActor returns an authenticated actor.
func UserActor(userID string) Actor {
	return Actor{UserID: userID}
}

// VisitorActor returns an anonymous actor.
func VisitorActor(token string) Actor {
	return Actor{VisitorToken: token}
}

// Normalize trims both identifiers and clears the visitor token when a user is known.
func (a Actor) Normalize() Actor {
	a.UserID = strings.TrimSpace(a.UserID)
	a.VisitorToken = strings.TrimSpace(a.VisitorToken)
	if a.UserID != "" {
		a.VisitorToken = ""
	}
	return a
}

// IsAuthenticated reports whether the actor is a known user.
func (a Actor) IsAuthenticated() bool {
	return strings.TrimSpace(a.UserID) != ""
}

// Key returns the discriminated identity used in uniqueness constraints.
func (a Actor) Key() (string, error) {
	a = a.Normalize()
	switch {
	case a.UserID != "":
		return userKeyPrefix + a.UserID, nil
	case a.VisitorToken != "":
		return visitorKeyPrefix + a.VisitorToken, nil
	default:
		return "", ErrUnresolvableActor
	}
}

// UserIDPtr returns the user id as a nullable column value.
func (a Actor) UserIDPtr() *string {
	a = a.Normalize()
	if a.UserID == "" {
		return nil
	}
	return &a.UserID
}

// VisitorTokenPtr returns the visitor token as a nullable column value.
func (a Actor) VisitorTokenPtr() *string {
	a = a.Normalize()
	if a.VisitorToken == "" {
		return nil
	}
	return &a.VisitorToken
}
