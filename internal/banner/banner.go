package banner

import (
	"scopebench/internal/tui/styles"

	"github.com/charmbracelet/lipgloss"
)

func GetString() string {
	renderer := lipgloss.DefaultRenderer()

	style := renderer.NewStyle().
		Foreground(styles.ColorBanner).
		Bold(true)

	ascii := `
                         __                    __
  ______________  ____  / /_  ___  ____  _____/ /_
 / ___/ ___/ __ \/ __ \/ __ \/ _ \/ __ \/ ___/ __ \
(__  ) /__/ /_/ / /_/ / /_/ /  __/ / / / /__/ / / /
/____/\___/\____/ .___/_.___/\___/_/ /_/\___/_/ /_/
               /_/    waveform transfer benchmark  `

	return "\n" + style.Render(ascii) + "\n"
}
