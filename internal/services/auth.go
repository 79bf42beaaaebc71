package services

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenService issues and validates seat tokens: signed proof that a
// client holds a given participant seat in a given room. A seat may be
// held by several physical connections at once (admin reclaim), each
// carrying its own token for the same participant ID.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), ttl: ttl}
}

func (s *TokenService) Generate(participantID, roomCode string) (string, error) {
	claims := jwt.MapClaims{
		"participant_id": participantID,
		"room_code":      roomCode,
		"exp":            time.Now().Add(s.ttl).Unix(),
		"iat":            time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *TokenService) Validate(tokenString string) (participantID, roomCode string, err error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", errors.New("invalid claims")
	}

	participantID, ok = claims["participant_id"].(string)
	if !ok || participantID == "" {
		return "", "", errors.New("invalid participant_id in token")
	}
	roomCode, ok = claims["room_code"].(string)
	if !ok || roomCode == "" {
		return "", "", errors.New("invalid room_code in token")
	}
	return participantID, roomCode, nil
}
