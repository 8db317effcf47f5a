package console

import "strconv"

type rgb struct {
	r int
	g int
	b int
}

type tuiTheme struct {
	HeaderBG   rgb
	HeaderFG   rgb
	MetaFG     rgb
	ValueFG    rgb
	HealthyFG  rgb
	WarningFG  rgb
	CriticalFG rgb
	EventFG    rgb
}

const (
	ansiReset = "\x1b[0m"
	ansiBold  = "\x1b[1m"
	ansiDim   = "\x1b[2m"
)

// defaultTheme is tokyo-midnight trimmed to what the dashboard paints.
var defaultTheme = tuiTheme{
	HeaderBG:   rgb{r: 26, g: 27, b: 38},
	HeaderFG:   rgb{r: 192, g: 202, b: 245},
	MetaFG:     rgb{r: 127, g: 133, b: 163},
	ValueFG:    rgb{r: 122, g: 162, b: 247},
	HealthyFG:  rgb{r: 158, g: 206, b: 106},
	WarningFG:  rgb{r: 224, g: 175, b: 104},
	CriticalFG: rgb{r: 247, g: 118, b: 142},
	EventFG:    rgb{r: 187, g: 154, b: 247},
}

func ansiFgRGB(c rgb) string {
	return "\x1b[38;2;" + strconv.Itoa(c.r) + ";" + strconv.Itoa(c.g) + ";" + strconv.Itoa(c.b) + "m"
}

func ansiBgRGB(c rgb) string {
	return "\x1b[48;2;" + strconv.Itoa(c.r) + ";" + strconv.Itoa(c.g) + ";" + strconv.Itoa(c.b) + "m"
}
