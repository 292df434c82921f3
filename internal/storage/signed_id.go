package storage

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

const blobPurpose = "blob_id"

type blobClaims struct {
	Purpose string `json:"pur"`
	jwt.RegisteredClaims
}

// SignedIDs issues and verifies tamper-proof references to uploaded blobs.
// The upload endpoint signs the blob key; change payloads carry the result.
type SignedIDs struct {
	secret []byte
}

func NewSignedIDs(secret string) *SignedIDs {
	return &SignedIDs{secret: []byte(secret)}
}

func (s *SignedIDs) Sign(blobKey string) (string, error) {
	claims := blobClaims{
		Purpose:          blobPurpose,
		RegisteredClaims: jwt.RegisteredClaims{Subject: blobKey},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify returns the blob key behind signedID.
func (s *SignedIDs) Verify(signedID string) (string, error) {
	token, err := jwt.ParseWithClaims(signedID, &blobClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*blobClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid signed id")
	}
	if claims.Purpose != blobPurpose || claims.Subject == "" {
		return "", fmt.Errorf("signed id was not issued for a blob")
	}
	return claims.Subject, nil
}
