package chat

const (
	threadPanelWidth = 34
	headerHeight     = 2
	statusHeight     = 1
)

func (m *Model) mainWidth() int {
	width := m.width - threadPanelWidth - 1
	if width < 20 {
		width = 20
	}
	return width
}

func (m *Model) resize() {
	if m.width == 0 || m.height == 0 {
		return
	}
	width := m.mainWidth()
	m.input.SetWidth(width)
	vpHeight := m.height - headerHeight - inputHeight - statusHeight - 1
	if vpHeight < 1 {
		vpHeight = 1
	}
	m.viewport.Width = width
	m.viewport.Height = vpHeight
	m.refreshViewport(m.viewport.AtBottom())
}
