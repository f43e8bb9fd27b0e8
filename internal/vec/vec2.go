package vec

// Vec2 представляет колонку мира (X, Z)
type Vec2 struct {
	X, Y int
}
