// Package compose implements the local dead-key/compose sequence state
// machine. Tables are loaded from the XCompose files selected by the
// process locale; when no table can be built the engine degrades to
// passing every symbol through unchanged.
package compose

// Status describes the outcome of feeding one symbol to the engine.
type Status int

const (
	// Nothing: the symbol is not part of any compose sequence; pass it
	// through unchanged.
	Nothing Status = iota
	// Composing: the symbol extended a partial sequence; swallow it, no
	// event is emitted this turn.
	Composing
	// Composed: the sequence completed; emit the accumulated text and the
	// final logical symbol.
	Composed
	// Cancelled: an out-of-table symbol aborted a partial sequence;
	// swallow it, emit nothing.
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Nothing:
		return "nothing"
	case Composing:
		return "composing"
	case Composed:
		return "composed"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// Result is the outcome of one Feed call. Symbol and Text are set only
// when Status is Composed.
type Result struct {
	Status Status
	Symbol uint32
	Text   string
}

type node struct {
	next   map[uint32]*node
	text   string
	symbol uint32
	leaf   bool
}

// Table is a compiled compose sequence trie.
type Table struct {
	root *node
	n    int
}

// Len returns the number of sequences in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return t.n
}

func (t *Table) add(seq []uint32, text string, symbol uint32) {
	cur := t.root
	for _, sym := range seq {
		if cur.next == nil {
			cur.next = make(map[uint32]*node)
		}
		child, ok := cur.next[sym]
		if !ok {
			child = &node{}
			cur.next[sym] = child
		}
		cur = child
	}
	if !cur.leaf {
		cur.leaf = true
		cur.text = text
		cur.symbol = symbol
		t.n++
	}
}

// Engine is the compose state machine. One instance exists per physical
// keyboard. Feed must only be called for press and repeat transitions.
type Engine struct {
	table   *Table
	current *node
}

// NewEngine creates an engine over a table. A nil or empty table yields an
// engine that always reports Nothing.
func NewEngine(table *Table) *Engine {
	return &Engine{table: table}
}

// Active reports whether a partial sequence is in progress.
func (e *Engine) Active() bool {
	return e.current != nil
}

// Reset aborts any partial sequence without emitting anything.
func (e *Engine) Reset() {
	e.current = nil
}

// Feed advances the state machine by one symbol.
func (e *Engine) Feed(sym uint32) Result {
	if e.table == nil || e.table.n == 0 {
		return Result{Status: Nothing}
	}
	start := e.current
	if start == nil {
		start = e.table.root
	}
	child, ok := start.next[sym]
	if !ok {
		if e.current != nil {
			e.current = nil
			return Result{Status: Cancelled}
		}
		return Result{Status: Nothing}
	}
	if child.leaf {
		e.current = nil
		return Result{Status: Composed, Symbol: child.symbol, Text: child.text}
	}
	e.current = child
	return Result{Status: Composing}
}
