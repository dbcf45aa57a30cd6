package tray

import "fyne.io/fyne/v2"

// SVGContent is the tray and window icon: an eye over a preview frame.
const SVGContent = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 16 16" width="16" height="16">
  <rect x="1.5" y="3" width="13" height="10" rx="1.5" fill="none" stroke="#00ff99" stroke-width="1.2"/>
  <path d="M3.5 8 Q8 3.8 12.5 8 Q8 12.2 3.5 8 Z" fill="none" stroke="#e0e0e0" stroke-width="1"/>
  <circle cx="8" cy="8" r="1.6" fill="#00ff99"/>
</svg>`

// Icon is SVGContent as a fyne resource.
var Icon = fyne.NewStaticResource("watchpoint.svg", []byte(SVGContent))
