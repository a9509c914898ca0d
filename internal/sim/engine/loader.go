package engine

// Loader walks the idle tree once per tick and offers every idle worker to
// the coordinator.
type Loader struct {
	st     *State
	coord  *Coordinator
	sensor WorldSensor
}

func NewLoader(st *State, coord *Coordinator, sensor WorldSensor) *Loader {
	return &Loader{st: st, coord: coord, sensor: sensor}
}

// Run returns how many workers were matched.
func (l *Loader) Run() int {
	matched := 0
	for _, room := range l.st.Idle.LabelsOf(nil) {
		for _, role := range l.st.Idle.LabelsOf([]string{room}) {
			path := []string{room, role}
			names := append([]string(nil), l.st.Idle.GetAllFromLeaf(path)...)
			still := make([]string, 0, len(names))
			for _, name := range names {
				w := l.st.Workers[name]
				if w == nil || (l.sensor != nil && !l.sensor.Alive(name)) {
					continue
				}
				if w.TaskID != "" {
					if t := l.st.task(w.TaskID); t != nil && l.coord.adopt(w, t) {
						continue
					}
					w.Release()
				}
				if l.coord.GetTask(w) {
					matched++
					continue
				}
				still = append(still, name)
			}
			l.st.Idle.AssignToLeaf(still, path)
		}
	}
	return matched
}
