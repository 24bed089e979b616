package dosing

// MaterialLine is one material to be dosed within an order.
type MaterialLine struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	BarcodeCode    string     `json:"barcode,omitempty"`
	SetPoint       *float64   `json:"set_point,omitempty"`
	ActualQuantity *float64   `json:"actual,omitempty"`
	Unit           string     `json:"unit"`
	Margin         *float64   `json:"margin,omitempty"`
	Status         LineStatus `json:"status"`
}

// Order is the ordered queue of material lines for one production order.
// Lines are processed strictly in sequence.
type Order struct {
	OrderID      string         `json:"order_id"`
	RecipeName   string         `json:"recipe_name"`
	Lines        []MaterialLine `json:"lines"`
	CurrentIndex int            `json:"current_index"`
	Complete     bool           `json:"complete"`
}

// NewOrder builds an order with every line Pending and the cursor on the
// first line. An order without lines is complete from the start.
func NewOrder(orderID, recipeName string, lines []MaterialLine) Order {
	o := Order{
		OrderID:    orderID,
		RecipeName: recipeName,
		Lines:      make([]MaterialLine, len(lines)),
	}
	for i, l := range lines {
		l.Status = StatusPending
		l.ActualQuantity = cloneFloat(l.ActualQuantity)
		l.SetPoint = cloneFloat(l.SetPoint)
		l.Margin = cloneFloat(l.Margin)
		o.Lines[i] = l
	}
	o.Complete = len(o.Lines) == 0
	return o
}

// Current returns the line under the cursor, or false once the order is complete.
func (o *Order) Current() (*MaterialLine, bool) {
	if o.Complete || o.CurrentIndex < 0 || o.CurrentIndex >= len(o.Lines) {
		return nil, false
	}
	return &o.Lines[o.CurrentIndex], true
}

// Advance moves the cursor to the next pending line. When none remain the
// order becomes complete. Advancing a complete order fails with OrderComplete.
func (o *Order) Advance() error {
	if o.Complete {
		return newError(KindOrderComplete, "order %s has no remaining materials", o.OrderID)
	}
	for i := o.CurrentIndex + 1; i < len(o.Lines); i++ {
		if o.Lines[i].Status == StatusPending {
			o.CurrentIndex = i
			return nil
		}
	}
	o.CurrentIndex = len(o.Lines)
	o.Complete = true
	return nil
}

// InProgressCount counts lines currently InProgress. It is never above one.
func (o *Order) InProgressCount() int {
	n := 0
	for _, l := range o.Lines {
		if l.Status == StatusInProgress {
			n++
		}
	}
	return n
}

// Clone returns a deep copy so callers can not mutate station state.
func (o Order) Clone() Order {
	c := o
	c.Lines = make([]MaterialLine, len(o.Lines))
	for i, l := range o.Lines {
		l.SetPoint = cloneFloat(l.SetPoint)
		l.ActualQuantity = cloneFloat(l.ActualQuantity)
		l.Margin = cloneFloat(l.Margin)
		c.Lines[i] = l
	}
	return c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
