package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edgerun/skippy/internal/skippy/clustercontext"
	"github.com/edgerun/skippy/internal/skippy/model"
)

// NodeHandler exposes a read-only view of the cluster context's inventory.
type NodeHandler struct {
	ctx clustercontext.ClusterContext
}

func NewNodeHandler(ctx clustercontext.ClusterContext) *NodeHandler {
	return &NodeHandler{ctx: ctx}
}

func (h *NodeHandler) List(w http.ResponseWriter, r *http.Request) {
	nodes := h.ctx.ListNodes()
	result := make([]map[string]interface{}, 0, len(nodes))
	for _, n := range nodes {
		result = append(result, nodeToMap(n))
	}
	page, pageSize := parsePagination(r)
	start, end, resp := paginateSlice(len(result), page, pageSize)
	resp.Data = result[start:end]
	writeJSON(w, http.StatusOK, resp)
}

func (h *NodeHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	node, ok := h.ctx.GetNode(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "node not found"})
		return
	}
	writeJSON(w, http.StatusOK, nodeToMap(node))
}

func nodeToMap(n *model.Node) map[string]interface{} {
	return map[string]interface{}{
		"name":            n.Name,
		"arch":            n.Arch(),
		"labels":          n.Labels,
		"capacityCPU":     n.Capacity.CPUMillis,
		"capacityMemory":  n.Capacity.Memory,
		"allocatableCPU":  n.Allocatable.CPUMillis,
		"allocatableMemory": n.Allocatable.Memory,
		"podCount":        len(n.Pods),
	}
}
