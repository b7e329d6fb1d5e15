package merkle

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const proofVersion = 1

var (
	ErrProofMismatch = errors.New("proof does not match root")
	ErrNotMember     = errors.New("key is not part of the proof")
	ErrMember        = errors.New("key is part of the proof")
	ErrInvalidProof  = errors.New("invalid proof")
)

// Proof shows that a bucket with the given leaves is part of a tree with some root.
// Since the bucket lists every key hash it contains, the same proof serves for
// membership and non-membership of a key.
type Proof struct {
	Depth    int
	Bucket   int
	Leaves   []Leaf
	Siblings []Hash // from the bucket level up to the children of the root
}

// Prove returns the proof for the bucket key falls into
func (t *Tree) Prove(key string) *Proof {
	bucket := BucketOf(key, t.depth)
	p := &Proof{
		Depth:  t.depth,
		Bucket: bucket,
		Leaves: append([]Leaf(nil), t.buckets[bucket]...),
	}
	i := bucket
	for l := t.depth; l > 0; l-- {
		p.Siblings = append(p.Siblings, t.levels[l][i^1])
		i /= 2
	}
	return p
}

// Root recomputes the root hash from the proof
func (p *Proof) Root() (Hash, error) {
	if p.Depth < 0 || p.Depth > MaxDepth || len(p.Siblings) != p.Depth || p.Bucket < 0 || p.Bucket >= 1<<p.Depth {
		return Hash{}, ErrInvalidProof
	}
	node := bucketHash(p.Leaves)
	i := p.Bucket
	for _, sibling := range p.Siblings {
		if i%2 == 0 {
			node = innerHash(node, sibling)
		} else {
			node = innerHash(sibling, node)
		}
		i /= 2
	}
	return node, nil
}

func (p *Proof) verify(root Hash, key string) (Leaf, bool, error) {
	kh := KeyHash(key)
	if bucketOfHash(kh, p.Depth) != p.Bucket {
		return Leaf{}, false, fmt.Errorf("%w: key belongs to another bucket", ErrInvalidProof)
	}
	computed, err := p.Root()
	if err != nil {
		return Leaf{}, false, err
	}
	if computed != root {
		return Leaf{}, false, ErrProofMismatch
	}
	for _, l := range p.Leaves {
		if l.KeyHash == kh {
			return l, true, nil
		}
	}
	return Leaf{}, false, nil
}

// VerifyMembership checks that key with the given record digest is part of the tree with root
func (p *Proof) VerifyMembership(root Hash, key string, digest Hash) error {
	leaf, found, err := p.verify(root, key)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotMember
	}
	if leaf.Digest != digest {
		return fmt.Errorf("%w: record digest differs", ErrProofMismatch)
	}
	return nil
}

// VerifyNonMembership checks that key is not part of the tree with root
func (p *Proof) VerifyNonMembership(root Hash, key string) error {
	_, found, err := p.verify(root, key)
	if err != nil {
		return err
	}
	if found {
		return ErrMember
	}
	return nil
}

// Marshal encodes the proof:
// version(1) depth(1) bucket(uvarint) leaves(uvarint) leaves*(2*HashSize) siblings*HashSize
func (p *Proof) Marshal() []byte {
	var b bytes.Buffer
	var buf [binary.MaxVarintLen64]byte

	b.WriteByte(proofVersion)
	b.WriteByte(byte(p.Depth))
	b.Write(buf[:binary.PutUvarint(buf[:], uint64(p.Bucket))])
	b.Write(buf[:binary.PutUvarint(buf[:], uint64(len(p.Leaves)))])
	for _, l := range p.Leaves {
		b.Write(l.KeyHash[:])
		b.Write(l.Digest[:])
	}
	for _, s := range p.Siblings {
		b.Write(s[:])
	}
	return b.Bytes()
}

// UnmarshalProof decodes a proof written by Marshal
func UnmarshalProof(data []byte) (*Proof, error) {
	if len(data) < 2 {
		return nil, ErrInvalidProof
	}
	if data[0] != proofVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidProof, data[0])
	}
	p := &Proof{Depth: int(data[1])}
	if p.Depth > MaxDepth {
		return nil, fmt.Errorf("%w: depth %d", ErrInvalidProof, p.Depth)
	}
	rest := data[2:]

	bucket, n := binary.Uvarint(rest)
	if n <= 0 {
		return nil, ErrInvalidProof
	}
	rest = rest[n:]
	numLeaves, n := binary.Uvarint(rest)
	if n <= 0 {
		return nil, ErrInvalidProof
	}
	rest = rest[n:]

	if numLeaves > uint64(len(rest))/(2*HashSize) ||
		uint64(len(rest)) != numLeaves*2*HashSize+uint64(p.Depth)*HashSize {
		return nil, fmt.Errorf("%w: unexpected length", ErrInvalidProof)
	}
	p.Bucket = int(bucket)

	p.Leaves = make([]Leaf, numLeaves)
	for i := range p.Leaves {
		copy(p.Leaves[i].KeyHash[:], rest[:HashSize])
		copy(p.Leaves[i].Digest[:], rest[HashSize:2*HashSize])
		rest = rest[2*HashSize:]
	}
	p.Siblings = make([]Hash, p.Depth)
	for i := range p.Siblings {
		copy(p.Siblings[i][:], rest[:HashSize])
		rest = rest[HashSize:]
	}
	return p, nil
}
