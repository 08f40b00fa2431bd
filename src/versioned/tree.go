package versioned

import (
	"errors"
	"path"

	"git.handmade.network/hmn/edu/src/models"
	"git.handmade.network/hmn/edu/src/oops"
	"git.handmade.network/hmn/edu/src/slugs"
)

// Deepest level a container may sit at by default. The root is level 0, so a
// content holds parts (1), which hold chapters (2), which hold extracts.
const MaxContainerLevel = 2

var (
	ErrTooDeep       = errors.New("container would be nested too deeply")
	ErrMixedChildren = errors.New("a container cannot hold both containers and extracts")
	ErrAttached      = errors.New("node already belongs to a container")
	ErrCycle         = errors.New("a node cannot be placed inside itself")
	ErrSlugTaken     = errors.New("slug already used by a sibling")
	ErrNoSuchChild   = errors.New("no such child")
	ErrCannotMove    = errors.New("node cannot be moved there")
)

// Slugs that would collide with the files generated for a container.
var reservedSlugs = map[string]bool{
	"introduction": true,
	"conclusion":   true,
}

/*
A node of a content's tree: either a *Container or an *Extract. The set is
closed; switch on the concrete type to handle each kind:

	switch n := node.(type) {
	case *versioned.Container:
	case *versioned.Extract:
	}
*/
type Node interface {
	Info() *NodeInfo
	Parent() *Container
	Level() int

	isNode()
}

// Fields shared by every kind of node.
type NodeInfo struct {
	Title string
	Slug  string

	parent *Container
}

func (i *NodeInfo) Info() *NodeInfo {
	return i
}

func (i *NodeInfo) Parent() *Container {
	return i.parent
}

type Container struct {
	NodeInfo

	Introduction string
	Conclusion   string

	// Where the texts are stored: repository paths in a draft, rendered
	// artifact paths in a public tree. Empty when a text was inlined.
	IntroductionPath string
	ConclusionPath   string

	ReadyToPublish bool

	children []Node
	limits   *Limits
}

type Extract struct {
	NodeInfo

	Text     string
	TextPath string
}

func (*Container) isNode() {}
func (*Extract) isNode()   {}

type Limits struct {
	MaxLevel    int
	MaxSlugSize int
}

func (l Limits) withDefaults() Limits {
	if l.MaxLevel <= 0 {
		l.MaxLevel = MaxContainerLevel
	}
	if l.MaxSlugSize <= 0 {
		l.MaxSlugSize = slugs.DefaultMaxSize
	}
	return l
}

// The root of a tree, along with the metadata of the content it belongs to.
type Content struct {
	Container

	Type        models.ContentType
	Description string
	Licence     string

	ContentID int
	// The commit the tree was loaded from, or empty for a tree that was never
	// saved.
	CurrentVersion string
}

func NewContent(title, slug string, contentType models.ContentType) *Content {
	if slug == "" {
		slug = slugs.Slugify(title)
	}
	c := &Content{
		Container: Container{
			NodeInfo:       NodeInfo{Title: title, Slug: slug},
			ReadyToPublish: true,
		},
		Type: contentType,
	}
	c.limits = &Limits{}
	*c.limits = c.limits.withDefaults()
	return c
}

func (c *Content) SetLimits(l Limits) {
	l = l.withDefaults()
	c.limits = &l
}

func (c *Content) Limits() Limits {
	return c.Container.treeLimits()
}

func NewContainer(title string) *Container {
	return &Container{
		NodeInfo:       NodeInfo{Title: title},
		ReadyToPublish: true,
	}
}

func NewExtract(title, text string) *Extract {
	return &Extract{
		NodeInfo: NodeInfo{Title: title},
		Text:     text,
	}
}

func (c *Container) treeLimits() Limits {
	if r := c.Root(); r.limits != nil {
		return *r.limits
	}
	return Limits{}.withDefaults()
}

// Returns a copy of the children, in order.
func (c *Container) Children() []Node {
	return append([]Node(nil), c.children...)
}

func (c *Container) Root() *Container {
	r := c
	for r.parent != nil {
		r = r.parent
	}
	return r
}

func (c *Container) Level() int {
	level := 0
	for p := c.parent; p != nil; p = p.parent {
		level++
	}
	return level
}

func (e *Extract) Level() int {
	if e.parent == nil {
		return 0
	}
	return e.parent.Level() + 1
}

// Number of container levels below this one: 0 for a container that holds
// extracts or nothing.
func (c *Container) Height() int {
	h := 0
	for _, child := range c.children {
		if cc, ok := child.(*Container); ok {
			h = max(h, cc.Height()+1)
		}
	}
	return h
}

func (c *Container) HasExtracts() bool {
	return len(c.children) > 0 && isExtract(c.children[0])
}

func (c *Container) HasContainers() bool {
	return len(c.children) > 0 && !isExtract(c.children[0])
}

func (c *Container) IsRoot() bool {
	return c.parent == nil
}

// Whether an extract could be mounted here without breaking the tree rules.
func (c *Container) CanHoldExtracts() bool {
	return !c.HasContainers() && c.Level() <= c.treeLimits().MaxLevel
}

func isExtract(n Node) bool {
	_, ok := n.(*Extract)
	return ok
}

/*
Slash-joined slugs from the root down to this container. The relative form
leaves out the root's own slug, so it is empty for the root:

	part.Path(true)  // "premiere-partie"
	part.Path(false) // "mon-tutoriel/premiere-partie"
*/
func (c *Container) Path(relative bool) string {
	var parts []string
	for n := c; n != nil; n = n.parent {
		if n.parent == nil && relative {
			break
		}
		parts = append([]string{n.Slug}, parts...)
	}
	return path.Join(parts...)
}

func (e *Extract) FullSlug() string {
	if e.parent == nil {
		return e.Slug
	}
	return path.Join(e.parent.Path(true), e.Slug)
}

// Identifies a node within its tree, the same way TargetsFor does.
func PathOf(n Node) string {
	switch n := n.(type) {
	case *Container:
		return n.Path(true)
	case *Extract:
		return n.FullSlug()
	}
	panic("unknown node type")
}

func (c *Container) AddContainer(child *Container) error {
	if child.parent != nil {
		return oops.New(ErrAttached, "container %q is already attached", child.Slug)
	}
	if c.Root() == child {
		return oops.New(ErrCycle, "cannot add %q to its own subtree", child.Slug)
	}
	if c.HasExtracts() {
		return oops.New(ErrMixedChildren, "%q holds extracts", c.Slug)
	}
	if level := c.Level() + 1 + child.Height(); level > c.treeLimits().MaxLevel {
		return oops.New(ErrTooDeep, "adding %q under %q would reach level %d", child.Title, c.Slug, level)
	}
	return c.attach(child, &child.NodeInfo, len(c.children))
}

func (c *Container) AddExtract(child *Extract) error {
	if child.parent != nil {
		return oops.New(ErrAttached, "extract %q is already attached", child.Slug)
	}
	if c.HasContainers() {
		return oops.New(ErrMixedChildren, "%q holds containers", c.Slug)
	}
	if c.Level() > c.treeLimits().MaxLevel {
		return oops.New(ErrTooDeep, "%q is too deep to hold extracts", c.Slug)
	}
	return c.attach(child, &child.NodeInfo, len(c.children))
}

// Inserts child at index, fixing up its slug. Depth and kind checks are up to
// the caller.
func (c *Container) attach(child Node, info *NodeInfo, index int) error {
	limits := c.treeLimits()
	if info.Slug == "" {
		info.Slug = slugs.Unique(info.Title, func(s string) bool {
			return c.slugTaken(s, child)
		})
	} else if c.slugTaken(info.Slug, child) {
		return oops.New(ErrSlugTaken, "%q already has a child with slug %q", c.Slug, info.Slug)
	}
	if err := slugs.Validate(info.Slug, limits.MaxSlugSize); err != nil {
		return err
	}

	info.parent = c
	c.children = append(c.children, nil)
	copy(c.children[index+1:], c.children[index:])
	c.children[index] = child
	return nil
}

func (c *Container) slugTaken(slug string, except Node) bool {
	if reservedSlugs[slug] {
		return true
	}
	for _, child := range c.children {
		if child != except && child.Info().Slug == slug {
			return true
		}
	}
	return false
}

func (c *Container) detach(child Node) {
	i := c.indexOf(child)
	if i < 0 {
		return
	}
	c.children = append(c.children[:i], c.children[i+1:]...)
	child.Info().parent = nil
}

func (c *Container) indexOf(child Node) int {
	for i, n := range c.children {
		if n == child {
			return i
		}
	}
	return -1
}

func (c *Container) indexOfSlug(slug string) int {
	for i, n := range c.children {
		if n.Info().Slug == slug {
			return i
		}
	}
	return -1
}

// Returns the direct child with the given slug, or nil.
func (c *Container) Child(slug string) Node {
	if i := c.indexOfSlug(slug); i >= 0 {
		return c.children[i]
	}
	return nil
}

func (c *Container) MoveChildUp(slug string) error {
	i := c.indexOfSlug(slug)
	if i < 0 {
		return oops.New(ErrNoSuchChild, "%q has no child %q", c.Slug, slug)
	}
	if i == 0 {
		return oops.New(ErrCannotMove, "%q is already first", slug)
	}
	c.children[i-1], c.children[i] = c.children[i], c.children[i-1]
	return nil
}

func (c *Container) MoveChildDown(slug string) error {
	i := c.indexOfSlug(slug)
	if i < 0 {
		return oops.New(ErrNoSuchChild, "%q has no child %q", c.Slug, slug)
	}
	if i == len(c.children)-1 {
		return oops.New(ErrCannotMove, "%q is already last", slug)
	}
	c.children[i+1], c.children[i] = c.children[i], c.children[i+1]
	return nil
}

func (c *Container) MoveChildBefore(slug, refSlug string) error {
	return c.moveChildNextTo(slug, refSlug, false)
}

func (c *Container) MoveChildAfter(slug, refSlug string) error {
	return c.moveChildNextTo(slug, refSlug, true)
}

func (c *Container) moveChildNextTo(slug, refSlug string, after bool) error {
	i := c.indexOfSlug(slug)
	if i < 0 {
		return oops.New(ErrNoSuchChild, "%q has no child %q", c.Slug, slug)
	}
	if c.indexOfSlug(refSlug) < 0 {
		return oops.New(ErrNoSuchChild, "%q has no child %q", c.Slug, refSlug)
	}
	if slug == refSlug {
		return oops.New(ErrCannotMove, "cannot move %q next to itself", slug)
	}

	child := c.children[i]
	c.children = append(c.children[:i], c.children[i+1:]...)
	j := c.indexOfSlug(refSlug)
	if after {
		j++
	}
	c.children = append(c.children, nil)
	copy(c.children[j+1:], c.children[j:])
	c.children[j] = child
	return nil
}

/*
Moves node next to target, which may be anywhere in the same tree. The target
must be one TargetsFor flags Beside: for a container, a movable container; for
an extract, any other extract. The moved node gets a new slug if its own is taken in
its new parent.
*/
func MoveBeside(node, target Node, after bool) error {
	if node == target {
		return oops.New(ErrCannotMove, "cannot move a node next to itself")
	}
	newParent := target.Parent()
	if newParent == nil {
		return oops.New(ErrCannotMove, "cannot move next to the root")
	}

	switch node.(type) {
	case *Container:
		if _, ok := target.(*Container); !ok {
			return oops.New(ErrCannotMove, "containers can only be placed next to containers")
		}
	case *Extract:
		if _, ok := target.(*Extract); !ok {
			return oops.New(ErrCannotMove, "extracts can only be placed next to extracts")
		}
	}
	if !canGoBeside(TargetsFor(node, newParent.Root()), PathOf(target)) {
		return oops.New(ErrCannotMove, "%q cannot be placed next to %q", node.Info().Slug, target.Info().Slug)
	}
	if node.Parent() == nil {
		return oops.New(ErrCannotMove, "only attached nodes can be moved")
	}

	return relocate(node, newParent, func() int {
		i := newParent.indexOf(target)
		if after {
			i++
		}
		return i
	})
}

// Moves an extract to the end of container, which must be one TargetsFor
// marks as movable.
func MoveInto(extract *Extract, container *Container) error {
	if extract.Parent() == nil {
		return oops.New(ErrCannotMove, "only attached extracts can be moved")
	}
	if container.IsRoot() {
		if container.HasContainers() {
			return oops.New(ErrMixedChildren, "the root holds containers")
		}
	} else if !isMovable(TargetsFor(extract, container.Root()), container.Path(true)) {
		return oops.New(ErrCannotMove, "%q cannot hold extracts", container.Slug)
	}
	return relocate(extract, container, func() int { return len(container.children) })
}

func relocate(node Node, newParent *Container, index func() int) error {
	info := node.Info()
	oldParent := info.parent
	oldIndex := oldParent.indexOf(node)
	oldSlug := info.Slug

	oldParent.detach(node)
	if oldParent != newParent {
		if newParent.slugTaken(oldSlug, node) {
			info.Slug = ""
		}
	}
	if err := newParent.attach(node, info, index()); err != nil {
		info.Slug = oldSlug
		info.parent = nil
		oldParent.children = append(oldParent.children, nil)
		copy(oldParent.children[oldIndex+1:], oldParent.children[oldIndex:])
		oldParent.children[oldIndex] = node
		info.parent = oldParent
		return err
	}
	return nil
}

func isMovable(targets []Target, p string) bool {
	for _, t := range targets {
		if t.Path == p {
			return t.Movable
		}
	}
	return false
}

func canGoBeside(targets []Target, p string) bool {
	for _, t := range targets {
		if t.Path == p {
			return t.Beside
		}
	}
	return false
}

var errStopWalk = errors.New("stop walk")

// Visits every node under root in document order, root first. Returning an
// error from fn stops the walk and returns that error.
func Walk(root *Container, fn func(n Node) error) error {
	if err := fn(root); err != nil {
		return err
	}
	return walkChildren(root, fn)
}

func walkChildren(c *Container, fn func(n Node) error) error {
	for _, child := range c.children {
		if err := fn(child); err != nil {
			return err
		}
		if cc, ok := child.(*Container); ok {
			if err := walkChildren(cc, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Finds the node with the given relative path ("" is the root), or nil.
func Find(root *Container, p string) Node {
	var found Node
	_ = Walk(root, func(n Node) error {
		if PathOf(n) == p {
			found = n
			return errStopWalk
		}
		return nil
	})
	return found
}

// Returns a deep copy of the tree without the containers that are not ready
// to publish, nor anything beneath them. The root is always kept.
func Prune(content *Content) *Content {
	pruned := *content
	pruned.Container = *copyContainer(&content.Container, true)
	if content.limits != nil {
		limits := *content.limits
		pruned.limits = &limits
	}
	fixParents(&pruned.Container)
	return &pruned
}

// Returns a deep copy of the tree.
func Clone(content *Content) *Content {
	cloned := *content
	cloned.Container = *copyContainer(&content.Container, false)
	if content.limits != nil {
		limits := *content.limits
		cloned.limits = &limits
	}
	fixParents(&cloned.Container)
	return &cloned
}

func copyContainer(c *Container, onlyReady bool) *Container {
	cp := *c
	cp.parent = nil
	cp.children = nil
	for _, child := range c.children {
		switch child := child.(type) {
		case *Container:
			if onlyReady && !child.ReadyToPublish {
				continue
			}
			cp.children = append(cp.children, copyContainer(child, onlyReady))
		case *Extract:
			e := *child
			cp.children = append(cp.children, &e)
		}
	}
	return &cp
}

// Copies carry stale parent pointers; point them at the new tree.
func fixParents(c *Container) {
	for _, child := range c.children {
		child.Info().parent = c
		if cc, ok := child.(*Container); ok {
			fixParents(cc)
		}
	}
}
