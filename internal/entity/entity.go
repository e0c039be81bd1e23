// Package entity defines the identity contract shared by every persisted
// type.
package entity

import "reflect"

// Entity is anything with a stable identifier.
type Entity[ID comparable] interface {
	EntityID() ID
}

// Base can be embedded to provide an ID field and the Entity method.
type Base[ID comparable] struct {
	ID ID `json:"id" yaml:"id"`
}

// EntityID returns the identifier.
func (b Base[ID]) EntityID() ID { return b.ID }

// IsTransient reports whether the entity has not been assigned an
// identifier yet.
func (b Base[ID]) IsTransient() bool {
	var zero ID
	return b.ID == zero
}

// IsPersistent is the inverse of IsTransient.
func (b Base[ID]) IsPersistent() bool { return !b.IsTransient() }

// IsNil reports whether e is nil or a typed nil pointer.
func IsNil[ID comparable](e Entity[ID]) bool {
	if e == nil {
		return true
	}
	v := reflect.ValueOf(e)
	switch v.Kind() { //nolint:exhaustive // only nilable kinds matter
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return v.IsNil()
	default:
		return false
	}
}

// SameIdentity reports whether a and b denote the same entity. Entities with
// identifiers match by identifier; transient entities only match themselves.
func SameIdentity[ID comparable](a, b Entity[ID]) bool {
	if IsNil(a) || IsNil(b) {
		return false
	}
	var zero ID
	ida, idb := a.EntityID(), b.EntityID()
	if ida != zero && idb != zero {
		return ida == idb
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() == reflect.Pointer && vb.Kind() == reflect.Pointer {
		return va.Pointer() == vb.Pointer()
	}
	return false
}
