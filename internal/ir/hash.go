package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainKey   = "instkey/key/v1"
	DomainScene = "instkey/scene/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// CanonicalKey builds the canonical IR form of an arc sequence followed by
// a selection sequence. Both stay arrays so that order is part of identity.
func CanonicalKey(arcs []Arc, selections []VariantSelection) IRObject {
	arcArr := make(IRArray, len(arcs))
	for i, a := range arcs {
		arcArr[i] = a.Canonical()
	}
	selArr := make(IRArray, len(selections))
	for i, s := range selections {
		selArr[i] = s.Canonical()
	}
	return IRObject{
		"arcs":               arcArr,
		"variant_selections": selArr,
	}
}

// KeyDigest computes the persisted identity of an instance key.
// Equal arc and selection sequences always produce equal digests, across
// processes and versions sharing IRVersion.
func KeyDigest(arcs []Arc, selections []VariantSelection) (string, error) {
	canonical, err := MarshalCanonical(CanonicalKey(arcs, selections))
	if err != nil {
		return "", fmt.Errorf("KeyDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainKey, canonical), nil
}

// MustKeyDigest is like KeyDigest but panics on error.
// Arcs and selections only hold strings, so marshaling cannot fail.
func MustKeyDigest(arcs []Arc, selections []VariantSelection) string {
	d, err := KeyDigest(arcs, selections)
	if err != nil {
		panic(err)
	}
	return d
}

// SceneDigest identifies the content of a scene fixture file so that a
// replay can tell "same scene, different keys" from "scene was edited".
func SceneDigest(content []byte) string {
	return hashWithDomain(DomainScene, content)
}
