package user

import (
	"encoding/binary"
	"slices"

	"github.com/ValerySidorin/rill/internal/wire"
)

// Permissions is the full permission set of a user: ten global flags
// plus optional per-stream grants with nested per-topic grants.
type Permissions struct {
	Global  GlobalPermissions
	Streams map[uint32]StreamPermissions
}

// GlobalPermissions are serialized as one byte each, in field order.
type GlobalPermissions struct {
	ManageServers bool
	ReadServers   bool
	ManageUsers   bool
	ReadUsers     bool
	ManageStreams bool
	ReadStreams   bool
	ManageTopics  bool
	ReadTopics    bool
	PollMessages  bool
	SendMessages  bool
}

type StreamPermissions struct {
	ManageStream bool
	ReadStream   bool
	ManageTopics bool
	ReadTopics   bool
	PollMessages bool
	SendMessages bool
	Topics       map[uint32]TopicPermissions
}

type TopicPermissions struct {
	ManageTopic  bool
	ReadTopic    bool
	PollMessages bool
	SendMessages bool
}

// AppendTo appends the serialized permissions body. Map entries are
// written in ascending key order followed by a has-next continuation
// byte, so the encoding is deterministic and round-trips.
func (p *Permissions) AppendTo(b []byte) []byte {
	g := p.Global
	for _, v := range []bool{
		g.ManageServers, g.ReadServers,
		g.ManageUsers, g.ReadUsers,
		g.ManageStreams, g.ReadStreams,
		g.ManageTopics, g.ReadTopics,
		g.PollMessages, g.SendMessages,
	} {
		b = wire.AppendBool(b, v)
	}

	if len(p.Streams) == 0 {
		return append(b, 0)
	}
	b = append(b, 1)

	ids := sortedKeys(p.Streams)
	for n, id := range ids {
		s := p.Streams[id]
		b = binary.LittleEndian.AppendUint32(b, id)
		for _, v := range []bool{
			s.ManageStream, s.ReadStream,
			s.ManageTopics, s.ReadTopics,
			s.PollMessages, s.SendMessages,
		} {
			b = wire.AppendBool(b, v)
		}
		b = appendTopics(b, s.Topics)
		b = wire.AppendBool(b, n < len(ids)-1)
	}
	return b
}

func appendTopics(b []byte, topics map[uint32]TopicPermissions) []byte {
	if len(topics) == 0 {
		return append(b, 0)
	}
	b = append(b, 1)

	ids := sortedKeys(topics)
	for n, id := range ids {
		t := topics[id]
		b = binary.LittleEndian.AppendUint32(b, id)
		for _, v := range []bool{t.ManageTopic, t.ReadTopic, t.PollMessages, t.SendMessages} {
			b = wire.AppendBool(b, v)
		}
		b = wire.AppendBool(b, n < len(ids)-1)
	}
	return b
}

func ReadPermissions(r *wire.Reader) (Permissions, error) {
	var p Permissions

	g := &p.Global
	for _, f := range []*bool{
		&g.ManageServers, &g.ReadServers,
		&g.ManageUsers, &g.ReadUsers,
		&g.ManageStreams, &g.ReadStreams,
		&g.ManageTopics, &g.ReadTopics,
		&g.PollMessages, &g.SendMessages,
	} {
		v, err := r.Bool()
		if err != nil {
			return Permissions{}, err
		}
		*f = v
	}

	present, err := r.Bool()
	if err != nil {
		return Permissions{}, err
	}
	if !present {
		return p, nil
	}

	p.Streams = make(map[uint32]StreamPermissions)
	for {
		id, err := r.Uint32()
		if err != nil {
			return Permissions{}, err
		}

		var s StreamPermissions
		for _, f := range []*bool{
			&s.ManageStream, &s.ReadStream,
			&s.ManageTopics, &s.ReadTopics,
			&s.PollMessages, &s.SendMessages,
		} {
			v, err := r.Bool()
			if err != nil {
				return Permissions{}, err
			}
			*f = v
		}

		if s.Topics, err = readTopics(r); err != nil {
			return Permissions{}, err
		}
		p.Streams[id] = s

		next, err := r.Bool()
		if err != nil {
			return Permissions{}, err
		}
		if !next {
			return p, nil
		}
	}
}

func readTopics(r *wire.Reader) (map[uint32]TopicPermissions, error) {
	present, err := r.Bool()
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}

	topics := make(map[uint32]TopicPermissions)
	for {
		id, err := r.Uint32()
		if err != nil {
			return nil, err
		}

		var t TopicPermissions
		for _, f := range []*bool{&t.ManageTopic, &t.ReadTopic, &t.PollMessages, &t.SendMessages} {
			v, err := r.Bool()
			if err != nil {
				return nil, err
			}
			*f = v
		}
		topics[id] = t

		next, err := r.Bool()
		if err != nil {
			return nil, err
		}
		if !next {
			return topics, nil
		}
	}
}

func sortedKeys[V any](m map[uint32]V) []uint32 {
	ids := make([]uint32, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
