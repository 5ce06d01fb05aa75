package treecache

func (c *Cache[V]) valueSize(value V) int64 {
	if c.sizeFunc != nil {
		return c.sizeFunc(value)
	}

	return 1
}

// putMemory inserts or refreshes an entry. Values larger than the whole
// memory budget are not held.
func (c *Cache[V]) putMemory(key string, value V) {
	valSize := c.valueSize(value)
	if c.maxSize > 0 && valSize > c.maxSize {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.entries[key]; ok {
		c.curSize += valSize - ent.size
		ent.value = value
		ent.size = valSize
		c.moveToFront(ent)

		for c.maxSize > 0 && c.curSize > c.maxSize && c.tail != ent {
			c.evictTail()
		}

		return
	}

	c.evictUntilFits(valSize)

	ent := &entry[V]{key: key, value: value, size: valSize}
	c.entries[key] = ent
	c.curSize += valSize
	c.addToFront(ent)
}

func (c *Cache[V]) evictUntilFits(valSize int64) {
	for c.maxEntries > 0 && len(c.entries) >= c.maxEntries && c.tail != nil {
		c.evictTail()
	}

	for c.maxSize > 0 && c.curSize+valSize > c.maxSize && c.tail != nil {
		c.evictTail()
	}
}

func (c *Cache[V]) evictTail() {
	victim := c.tail
	c.removeFromList(victim)
	delete(c.entries, victim.key)
	c.curSize -= victim.size
	c.evictions.Add(1)
}

func (c *Cache[V]) moveToFront(ent *entry[V]) {
	if ent == c.head {
		return
	}

	c.removeFromList(ent)
	c.addToFront(ent)
}

func (c *Cache[V]) addToFront(ent *entry[V]) {
	ent.prev = nil
	ent.next = c.head

	if c.head != nil {
		c.head.prev = ent
	}

	c.head = ent

	if c.tail == nil {
		c.tail = ent
	}
}

func (c *Cache[V]) removeFromList(ent *entry[V]) {
	if ent.prev != nil {
		ent.prev.next = ent.next
	} else {
		c.head = ent.next
	}

	if ent.next != nil {
		ent.next.prev = ent.prev
	} else {
		c.tail = ent.prev
	}
}
