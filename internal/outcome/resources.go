package outcome

// Resources is a player's committed totals, or a staged delta against them.
type Resources struct {
	Money     int `json:"money"`
	Time      int `json:"time"`
	Scope     int `json:"scope"`
	Quality   int `json:"quality"`
	Debt      int `json:"debt"`
	Expertise int `json:"expertise"`
	Discount  int `json:"discount"`
}

// Add returns r + d.
func (r Resources) Add(d Resources) Resources {
	return Resources{
		Money:     r.Money + d.Money,
		Time:      r.Time + d.Time,
		Scope:     r.Scope + d.Scope,
		Quality:   r.Quality + d.Quality,
		Debt:      r.Debt + d.Debt,
		Expertise: r.Expertise + d.Expertise,
		Discount:  r.Discount + d.Discount,
	}
}

// Neg returns -r.
func (r Resources) Neg() Resources {
	return Resources{}.Sub(r)
}

// Sub returns r - d.
func (r Resources) Sub(d Resources) Resources {
	return Resources{
		Money:     r.Money - d.Money,
		Time:      r.Time - d.Time,
		Scope:     r.Scope - d.Scope,
		Quality:   r.Quality - d.Quality,
		Debt:      r.Debt - d.Debt,
		Expertise: r.Expertise - d.Expertise,
		Discount:  r.Discount - d.Discount,
	}
}

// IsZero reports whether every field is zero.
func (r Resources) IsZero() bool {
	return r == Resources{}
}
