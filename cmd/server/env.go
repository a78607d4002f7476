package main

import (
	"math/rand"
	"os"
	"strconv"
	"strings"
)

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func newRand(seed int64) *rand.Rand { return rand.New(rand.NewSource(seed)) }
