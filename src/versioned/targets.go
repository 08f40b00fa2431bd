package versioned

type TargetKind string

const (
	TargetContainer TargetKind = "container"
	TargetExtract   TargetKind = "extract"
)

type Target struct {
	Path  string
	Kind  TargetKind
	Title string
	Level int
	// Movable is what the move form offers: a container beside this target,
	// or an extract into it.
	Movable bool
	// Beside tells whether MoveBeside accepts this target. For a container
	// it matches Movable; for an extract it holds for every other extract.
	Beside bool
}

/*
Lists every node of root except the root itself, in document order, and flags
the ones node can be moved to.

A container moves beside its target, so the target must be another container
outside the moved subtree, at a level where the whole moved subtree still fits
under the depth limit. An extract moves into its target, so the target must be
a container able to hold extracts. Sibling extracts are never Movable for an
extract but are Beside, for reordering with MoveBeside.
*/
func TargetsFor(node Node, root *Container) []Target {
	maxLevel := root.treeLimits().MaxLevel

	var targets []Target
	_ = walkChildren(root, func(n Node) error {
		t := Target{
			Path:  PathOf(n),
			Title: n.Info().Title,
			Level: n.Level(),
		}
		switch n := n.(type) {
		case *Container:
			t.Kind = TargetContainer
			t.Movable = canReceive(node, n, maxLevel)
			_, isContainer := node.(*Container)
			t.Beside = isContainer && t.Movable
		case *Extract:
			t.Kind = TargetExtract
			_, isExtract := node.(*Extract)
			t.Beside = isExtract && Node(n) != node
		}
		targets = append(targets, t)
		return nil
	})
	return targets
}

func canReceive(node Node, target *Container, maxLevel int) bool {
	switch moved := node.(type) {
	case *Container:
		if target == moved || isInside(target, moved) {
			return false
		}
		return target.Level()+moved.Height() <= maxLevel
	case *Extract:
		return !target.HasContainers() && target.Level() <= maxLevel
	}
	return false
}

func isInside(n *Container, ancestor *Container) bool {
	for p := n.parent; p != nil; p = p.parent {
		if p == ancestor {
			return true
		}
	}
	return false
}
