package actor

import (
	"fmt"

	"github.com/google/uuid"
)

// Type identifies who performed a transition.
type Type string

const (
	TypeSystem     Type = "system"
	TypeAdvertiser Type = "advertiser"
	TypeOwner      Type = "owner"
	TypeAdmin      Type = "admin"
)

// Roles carried in access tokens.
const (
	RoleAdvertiser = "ADVERTISER"
	RoleOwner      = "OWNER"
	RoleAdmin      = "ADMIN"
)

type Actor struct {
	Type Type      `json:"type"`
	ID   uuid.UUID `json:"id"`
}

func System() Actor {
	return Actor{Type: TypeSystem}
}

func Admin(id uuid.UUID) Actor {
	return Actor{Type: TypeAdmin, ID: id}
}

func Advertiser(id uuid.UUID) Actor {
	return Actor{Type: TypeAdvertiser, ID: id}
}

func Owner(id uuid.UUID) Actor {
	return Actor{Type: TypeOwner, ID: id}
}

// FromRole maps a token role to an actor.
func FromRole(role string, id uuid.UUID) (Actor, error) {
	switch role {
	case RoleAdvertiser:
		return Advertiser(id), nil
	case RoleOwner:
		return Owner(id), nil
	case RoleAdmin:
		return Admin(id), nil
	}
	return Actor{}, fmt.Errorf("unknown role %q", role)
}

func (a Actor) IsAdmin() bool  { return a.Type == TypeAdmin }
func (a Actor) IsSystem() bool { return a.Type == TypeSystem }

// Privileged actors skip ownership preconditions, never state reachability.
func (a Actor) Privileged() bool {
	return a.IsAdmin() || a.IsSystem()
}

func (a Actor) String() string {
	if a.Type == TypeSystem {
		return string(TypeSystem)
	}
	return fmt.Sprintf("%s:%s", a.Type, a.ID)
}
