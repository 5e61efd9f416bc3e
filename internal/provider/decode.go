package provider

import "context"

// greedyDecode grows a sequence starting at bos by repeatedly asking next for
// the following token. It stops at eos (not included) or once the sequence,
// bos included, reaches maxLength. The returned tokens exclude bos.
func greedyDecode(ctx context.Context, bos, eos int64, maxLength int, next func(prefix []int64) (int64, error)) ([]int64, error) {
	tokens := []int64{bos}
	for len(tokens) < maxLength {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tok, err := next(tokens)
		if err != nil {
			return nil, err
		}
		if tok == eos {
			break
		}
		tokens = append(tokens, tok)
	}
	return tokens[1:], nil
}
