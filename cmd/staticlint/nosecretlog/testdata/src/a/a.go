package a

import (
	"errors"
	"fmt"
	"log"
)

type sugared struct{}

func (sugared) Infow(msg string, keysAndValues ...interface{}) {}

func (sugared) Debugf(template string, args ...interface{}) {}

type field struct{}

func String(key, value string) field { return field{} }

type credential struct {
	Email    string
	Password string
}

var Log sugared

func examples(cred credential, accessToken string, signingKey []byte, tokenCount int) {
	Log.Infow("signin", "email", cred.Email)
	Log.Infow("signin", "password", cred.Password) // want `Password looks like a secret and must not be logged`
	Log.Debugf("issued %s", accessToken)           // want `accessToken looks like a secret and must not be logged`
	Log.Infow("key", String("key", string(signingKey))) // want `signingKey looks like a secret and must not be logged`
	log.Println("token", accessToken)                   // want `accessToken looks like a secret and must not be logged`

	Log.Infow("tokens issued", "count", tokenCount)
	Log.Infow("access token rejected", "error", errors.New("expired"))
	fmt.Println(accessToken)
}
