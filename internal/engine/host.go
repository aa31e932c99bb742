package engine

// ElectHost returns the host for members given the current host id. The
// current host is kept while it is still a player; otherwise the
// earliest-joined player wins. Spectators are never chosen. An empty result
// means there are no players.
func ElectHost(members []Member, current string) string {
	if current != "" {
		for _, m := range members {
			if m.ID == current && m.Role == RolePlayer {
				return current
			}
		}
	}
	for _, m := range members {
		if m.Role == RolePlayer {
			return m.ID
		}
	}
	return ""
}
