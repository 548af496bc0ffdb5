package www

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/icodeforyou/priceplan-go/types/maybe"
)

func intOrDefault(u *url.URL, key string, defaultValue int) int {
	if v := u.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

// optionalInt is None when key is absent and an error when it is not an integer.
func optionalInt(u *url.URL, key string) (maybe.Maybe[int], error) {
	v := u.Query().Get(key)
	if v == "" {
		return maybe.None[int](), nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return maybe.None[int](), fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return maybe.Some(i), nil
}

func boolOrDefault(u *url.URL, key string, defaultValue bool) bool {
	if v := u.Query().Get(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}
