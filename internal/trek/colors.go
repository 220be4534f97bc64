package trek

import (
	"hash/fnv"

	"github.com/lucasb-eyer/go-colorful"
)

// Subset of Kate Morley's 12-bit rainbow, assigned by join order.
var palette = []string{
	"#2cb",
	"#36b",
	"#639",
	"#817",
	"#c66",
	"#e94",
	"#ed0",
	"#9d5",
}

// participantColor picks the palette color for the nth joiner, falling back
// to a hue derived from the user id once the palette runs out.
func participantColor(index int, userID string) string {
	if index < len(palette) {
		return palette[index]
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	hue := float64(h.Sum32() % 360)
	return colorful.Hsl(hue, 0.6, 0.5).Hex()
}
