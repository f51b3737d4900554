package badge

// Color is a named badge color understood by the rendering service.
type Color string

const (
	ColorBrightGreen Color = "brightgreen"
	ColorYellowGreen Color = "yellowgreen"
	ColorYellow      Color = "yellow"
	ColorOrange      Color = "orange"
	ColorRed         Color = "red"
)

// Lower bounds (exclusive) of each color bucket. A percentage sitting exactly
// on a boundary falls into the lower bucket.
const (
	levelOrange      = 50
	levelYellow      = 70
	levelYellowGreen = 80
	levelBrightGreen = 90
)

// ColorFor maps a percentage in [0, 100] to a badge color.
func ColorFor(percentage float64) Color {
	switch {
	case percentage > levelBrightGreen:
		return ColorBrightGreen
	case percentage > levelYellowGreen:
		return ColorYellowGreen
	case percentage > levelYellow:
		return ColorYellow
	case percentage > levelOrange:
		return ColorOrange
	default:
		return ColorRed
	}
}
