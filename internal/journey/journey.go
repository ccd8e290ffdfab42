// Package journey holds the user flows perfgate can drive against the
// e-commerce gateway.
//
// Every task guards on the state it needs: a task whose prerequisite
// (user, cart, product, order) is missing returns without a request.
package journey

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"

	"github.com/wesleyorama2/perfgate/internal/loadgen"
)

var registry = map[string]func() loadgen.Journey{
	GatewayName: func() loadgen.Journey { return NewGateway() },
	ShopName:    func() loadgen.Journey { return NewShop() },
}

// Lookup returns the journey called name.
func Lookup(name string) (loadgen.Journey, error) {
	newJourney, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown journey %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return newJourney(), nil
}

// Names lists the registered journeys.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// payload builds a JSON document from path/value pairs.
func payload(pairs ...interface{}) ([]byte, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("payload needs path/value pairs, got %d arguments", len(pairs))
	}

	doc := []byte(`{}`)
	for i := 0; i < len(pairs); i += 2 {
		path, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("payload path %v is not a string", pairs[i])
		}

		var err error
		if doc, err = sjson.SetBytes(doc, path, pairs[i+1]); err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return doc, nil
}

// unique returns prefix followed by a short random suffix.
func unique(prefix, sep string) string {
	return prefix + sep + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// jsonID keeps numeric ids numeric when they are echoed back in a payload.
func jsonID(id string) interface{} {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

// setIfPresent stores value unless the response carried none.
func setIfPresent(s *loadgen.Session, key, value string) {
	if value != "" {
		s.Set(key, value)
	}
}
