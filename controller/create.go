package controller

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"sgb-web/library"
	"sgb-web/logger"
)

// CreateController collects and submits one new record.
type CreateController struct {
	env    Env
	entity *library.Entity
	log    *logger.Logger

	mu     sync.Mutex
	values map[string]string
	locked map[string]bool
	busy   bool
	err    string
}

// NewCreateController starts an empty form seeded with the entity's
// role-dependent presets.
func NewCreateController(env Env, e *library.Entity) *CreateController {
	c := &CreateController{
		env:    env,
		entity: e,
		log:    env.logger("create").WithStr("entity", e.Name),
		values: make(map[string]string, len(e.CreateFields)),
		locked: make(map[string]bool),
	}
	if e.Prepare != nil {
		values, locked := e.Prepare(env.session(), env.now())
		for k, v := range values {
			c.values[k] = library.Record{k: v}.String(k)
		}
		for _, k := range locked {
			c.locked[k] = true
		}
	}
	return c
}

// Entity is the type being created.
func (c *CreateController) Entity() *library.Entity { return c.entity }

// Fields lists the fields the user fills in, in form order.
func (c *CreateController) Fields() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.entity.CreateFields))
	for _, f := range c.entity.CreateFields {
		if !c.locked[f] {
			out = append(out, f)
		}
	}
	return out
}

// Locked lists the preset fields the user cannot change, in form order.
func (c *CreateController) Locked() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.locked))
	for _, f := range c.entity.CreateFields {
		if c.locked[f] {
			out = append(out, f)
		}
	}
	return out
}

// Set changes one user-editable field.
func (c *CreateController) Set(key, value string) error {
	if !c.known(key) {
		return fmt.Errorf("%w: %s", ErrUnknownField, key)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locked[key] {
		return fmt.Errorf("%w: %s", ErrFieldLocked, key)
	}
	c.values[key] = value
	return nil
}

// lock presets a field and makes it read-only.
func (c *CreateController) lock(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	c.locked[key] = true
}

// Values returns a copy of what has been entered.
func (c *CreateController) Values() library.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(library.Record, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Err is the inline error of the last failed submit.
func (c *CreateController) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Busy reports a submit in flight.
func (c *CreateController) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Validate runs the client-side checks.
func (c *CreateController) Validate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validateLocked()
}

func (c *CreateController) validateLocked() error {
	var missing []string
	for _, f := range c.entity.Required {
		if strings.TrimSpace(c.values[f]) == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &library.ValidationError{Fields: missing, Message: "Preencha todos os campos obrigatórios."}
	}
	for field, twin := range c.entity.Confirm {
		if c.values[field] != c.values[twin] {
			return &library.ValidationError{Fields: []string{field, twin}, Message: "As senhas não coincidem."}
		}
	}
	if v, ok := c.values["perfil"]; ok && c.known("perfil") {
		if _, valid := library.ParseRole(v); !valid {
			return &library.ValidationError{Fields: []string{"perfil"}, Message: "Perfil inválido."}
		}
	}
	return nil
}

// Submit validates and POSTs the form. Validation failures never reach the
// network. On success the created record is returned with the entity's
// defaults filled in wherever the backend omitted them; on failure the
// entered values are kept.
func (c *CreateController) Submit(ctx context.Context) (library.Record, error) {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	if err := c.validateLocked(); err != nil {
		c.err = userMessage("", err)
		c.mu.Unlock()
		return nil, err
	}
	if !c.entity.Public && !library.Can(c.env.session(), c.entity, library.ActionCreate, nil) {
		c.err = c.entity.Messages.Create
		c.mu.Unlock()
		return nil, library.ErrForbidden
	}
	payload := c.payloadLocked()
	c.busy = true
	c.err = ""
	c.mu.Unlock()

	var (
		rec library.Record
		err error
	)
	if c.entity.Public {
		rec, err = c.env.Backend.CreatePublic(ctx, c.entity.Endpoint, payload)
	} else {
		rec, err = c.env.Backend.Create(ctx, c.entity.Endpoint, payload)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	if err != nil {
		c.err = userMessage(c.entity.Messages.Create, err)
		c.log.Warn().Err(err).Msg("create failed")
		return nil, err
	}
	if rec == nil {
		rec = library.Record{}
	}
	for k, v := range c.entity.Defaults {
		if !rec.Has(k) {
			rec[k] = v
		}
	}
	c.log.Info().Str("id", c.entity.ID(rec)).Msg("created")
	return rec, nil
}

func (c *CreateController) payloadLocked() library.Record {
	twins := make(map[string]bool, len(c.entity.Confirm))
	for _, t := range c.entity.Confirm {
		twins[t] = true
	}
	values := make(library.Record, len(c.values))
	for _, f := range c.entity.CreateFields {
		if twins[f] {
			continue
		}
		v, ok := c.values[f]
		if !ok {
			continue
		}
		if _, secret := c.entity.Confirm[f]; !secret {
			v = strings.TrimSpace(v)
		}
		values[f] = v
	}
	if c.entity.CreatePayload != nil {
		return c.entity.CreatePayload(values)
	}
	return values
}

func (c *CreateController) known(key string) bool {
	for _, f := range c.entity.CreateFields {
		if f == key {
			return true
		}
	}
	return false
}

// Borrowers lists the patron accounts a staff member can lend to.
func Borrowers(ctx context.Context, env Env) ([]library.Record, error) {
	items, err := env.Backend.List(ctx, library.Users.Endpoint, url.Values{"perfil": {string(library.RolePatron)}})
	if err != nil {
		return nil, err
	}
	if library.Users.Sort != nil {
		library.Users.Sort(items)
	}
	return items, nil
}

// AvailableBooks lists the books that can be lent right now.
func AvailableBooks(ctx context.Context, env Env) ([]library.Record, error) {
	items, err := env.Backend.List(ctx, library.Books.Endpoint, url.Values{"disponibilidade": {library.Available}})
	if err != nil {
		return nil, err
	}
	if library.Books.Sort != nil {
		library.Books.Sort(items)
	}
	return items, nil
}
