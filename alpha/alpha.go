package alpha

import (
	"errors"
	"io"
	"unicode/utf8"
)

// Namer produces a deterministic sequence of names. Next returns io.EOF once
// the sequence is exhausted.
type Namer interface {
	Next() (string, error)
	Reset()
}

const (
	lowerA = 'a'
	lowerZ = 'z'
)

type Char struct {
	step int
	curr rune
	min  rune
	max  rune
}

func Create(min, max rune, step int) *Char {
	return &Char{
		step: step,
		curr: min,
		min:  min,
		max:  max,
	}
}

func Lower() *Char {
	return Create(lowerA, lowerZ, 1)
}

func (c *Char) Get() rune {
	return c.curr
}

func (c *Char) Next() rune {
	if c.Done() {
		return c.Get()
	}
	c.curr += rune(c.step)
	if c.curr > c.max {
		c.curr = utf8.RuneError
	}
	return c.curr
}

func (c *Char) Done() bool {
	return c.curr == utf8.RuneError
}

func (c *Char) Reset() {
	c.curr = c.min
}

type chain struct {
	list []*Char
	make func() *Char
}

func createChain(size int, mk func() *Char) *chain {
	c := chain{
		make: mk,
	}
	for i := 0; i < size; i++ {
		c.list = append(c.list, mk())
	}
	return &c
}

func (c *chain) Next() (string, error) {
	if len(c.list) == 0 || c.list[0].Done() {
		return "", io.EOF
	}
	return c.next()
}

func (c *chain) Reset() {
	for i := range c.list {
		c.list[i].Reset()
	}
}

func (c *chain) next() (string, error) {
	var chars []rune
	for _, a := range c.list {
		chars = append(chars, a.Get())
	}
	for i := len(c.list) - 1; i >= 0; i-- {
		c.list[i].Next()
		if !c.list[i].Done() {
			for j := i + 1; j < len(c.list); j++ {
				c.list[j].Reset()
			}
			break
		}
	}
	return string(chars), nil
}

type growing struct {
	prefix string
	size   int
	curr   *chain
	mk     func() *Char
}

// Identifiers returns a Namer that never runs out: once every name of a given
// width has been produced, the width grows by one. Every name starts with
// prefix so that the result can be used as an XML name when prefix is one.
func Identifiers(prefix string) Namer {
	g := growing{
		prefix: prefix,
		size:   1,
		mk:     Lower,
	}
	g.curr = createChain(g.size, g.mk)
	return &g
}

func (g *growing) Next() (string, error) {
	str, err := g.curr.Next()
	if errors.Is(err, io.EOF) {
		g.size++
		g.curr = createChain(g.size, g.mk)
		str, err = g.curr.Next()
	}
	if err != nil {
		return "", err
	}
	return g.prefix + str, nil
}

func (g *growing) Reset() {
	g.size = 1
	g.curr = createChain(g.size, g.mk)
}
