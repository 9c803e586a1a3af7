package comment

import "github.com/threadit/threadit-server/cmd/models"

// CommentNode is a comment augmented with its nested in-page replies and
// a reply count taken over the whole post, not just this page.
type CommentNode struct {
	models.Comment
	ReplyCount int64          `json:"reply_count"`
	Replies    []*CommentNode `json:"replies"`
}

// BuildCommentTree nests one page of comments into reply trees. The
// input order (ascending creation time) is preserved for roots and for
// each reply list. A comment whose parent is not part of the page is
// returned as a page-level root; stitching trees across pages would
// need unbounded recursive queries, which this deliberately avoids.
func BuildCommentTree(comments []models.Comment, replyCounts map[uint]int64) []*CommentNode {
	byID := make(map[uint]*CommentNode, len(comments))
	nodes := make([]*CommentNode, 0, len(comments))
	for i := range comments {
		node := &CommentNode{
			Comment:    comments[i],
			ReplyCount: replyCounts[comments[i].ID],
			Replies:    []*CommentNode{},
		}
		byID[comments[i].ID] = node
		nodes = append(nodes, node)
	}

	roots := make([]*CommentNode, 0, len(nodes))
	for _, node := range nodes {
		if node.ParentID != nil {
			if parent, ok := byID[*node.ParentID]; ok {
				parent.Replies = append(parent.Replies, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	return roots
}
