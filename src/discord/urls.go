package discord

import (
	"fmt"
	"strings"
)

// EntityURL links to an entity page, wrapped to suppress the embed.
func EntityURL(baseURL, collection, id string) string {
	return fmt.Sprintf("<%s/%s/%s>", strings.TrimRight(baseURL, "/"), collection, id)
}
