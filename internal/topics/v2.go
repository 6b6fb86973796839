package topics

import (
	"fmt"
	"strings"
)

// Scene message types on the v2 scene spine
// {realm}/s/{ns}/{scene}/{msgtype}/{clientTag}[/{toUid}][/#].
const (
	MsgTypeObjects      = "o"
	MsgTypePresence     = "x"
	MsgTypeChat         = "c"
	MsgTypeUser         = "u"
	MsgTypeRenderFusion = "r"
	MsgTypeEnvironment  = "e"
	MsgTypeProgram      = "p"
	MsgTypeDebug        = "d"
)

// privateDst is the to-uid level used on to-many publish topics that must
// not be subscribable by an unprivileged peer.
const privateDst = "-"

// v2Grammar is the scene-spine layout: one topic tree per scene with a
// message-type level, client-tagged publish topics and per-client private
// inbound channels. Environment data rides the spine (msgtype e) instead of
// a separate prefix.
type v2Grammar struct{}

func (v2Grammar) Version() Version { return V2 }

func (v2Grammar) PublicReadSubs(realm string) []string {
	return []string{fmt.Sprintf("%s/s/%s/+/%s/#", realm, PublicNamespace, MsgTypeObjects)}
}

func (v2Grammar) DeviceAccess(realm, device string) (pubs, subs []string) {
	t := fmt.Sprintf("%s/d/%s/#", realm, device)
	return []string{t}, []string{t}
}

func (v2Grammar) AllScenesAccess(realm string) (pubs, subs []string) {
	t := fmt.Sprintf("%s/s/#", realm)
	return []string{t}, []string{t}
}

func (v2Grammar) AllDevicesAccess(realm string) (pubs, subs []string) {
	t := fmt.Sprintf("%s/d/#", realm)
	return []string{t}, []string{t}
}

// TargetDiagnosticsPubs: vio diagnostics were folded into the debug message
// type in v2, already covered by the staff scene wildcard.
func (v2Grammar) TargetDiagnosticsPubs(realm, scene string) []string { return nil }

func (v2Grammar) NamespaceAccess(realm, ns string) (pubs, subs []string) {
	all := []string{
		fmt.Sprintf("%s/s/%s/#", realm, ns),
		fmt.Sprintf("%s/d/%s/#", realm, ns),
	}
	return all, all
}

func (v2Grammar) NamespaceReadSubs(realm, ns string) []string {
	return []string{fmt.Sprintf("%s/s/%s/#", realm, ns)}
}

func (v2Grammar) SceneAccess(realm, scene string) (pubs, subs []string) {
	t := fmt.Sprintf("%s/s/%s/#", realm, scene)
	return []string{t}, []string{t}
}

func (v2Grammar) SceneReadSubs(realm, scene, userClient string) []string {
	subs := []string{fmt.Sprintf("%s/s/%s/+/+", realm, scene)}
	if userClient != "" {
		// private inbound channel: messages addressed to this client
		subs = append(subs, fmt.Sprintf("%s/s/%s/+/+/%s/#", realm, scene, userClient))
	}
	return subs
}

func (v2Grammar) SceneWritePubs(realm, scene, userClient string) []string {
	if userClient == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s/s/%s/%s/%s", realm, scene, MsgTypeObjects, userClient),
		fmt.Sprintf("%s/s/%s/%s/%s/#", realm, scene, MsgTypeObjects, userClient),
	}
}

func (v2Grammar) AvatarPubs(realm, scene, camID, handLeftID, handRightID string) []string {
	var pubs []string
	for _, id := range []string{camID, handLeftID, handRightID} {
		if id == "" {
			continue
		}
		pubs = append(pubs,
			fmt.Sprintf("%s/s/%s/%s/%s", realm, scene, MsgTypeUser, id),
			fmt.Sprintf("%s/s/%s/%s/%s/+", realm, scene, MsgTypeUser, id),
		)
	}
	return pubs
}

func (v2Grammar) PresenceAccess(realm, scene, userID, userClient string) (pubs, subs []string) {
	if userClient == "" {
		return nil, nil
	}
	pubs = []string{
		fmt.Sprintf("%s/s/%s/%s/%s", realm, scene, MsgTypePresence, userClient),
		fmt.Sprintf("%s/s/%s/%s/%s/+", realm, scene, MsgTypePresence, userClient),
		fmt.Sprintf("%s/s/%s/%s/%s", realm, scene, MsgTypeChat, userClient),
		fmt.Sprintf("%s/s/%s/%s/%s/+", realm, scene, MsgTypeChat, userClient),
	}
	// broadcast and private inbound reads are covered by SceneReadSubs;
	// grant the self channel explicitly for write-only scenes
	subs = []string{
		fmt.Sprintf("%s/s/%s/+/%s", realm, scene, userClient),
	}
	return pubs, subs
}

func (v2Grammar) RenderFusionAccess(realm, scene, userClient string) (pubs, subs []string) {
	return capabilityAccess(realm, scene, MsgTypeRenderFusion, userClient)
}

func (v2Grammar) EnvironmentAccess(realm, scene, userClient string) (pubs, subs []string) {
	return capabilityAccess(realm, scene, MsgTypeEnvironment, userClient)
}

// capabilityAccess renders a write-mostly to-many channel with a narrow
// private read-back. The publish topics carry the privateDst to-uid level so
// peers cannot subscribe to them through the public wildcard.
func capabilityAccess(realm, scene, msgType, userClient string) (pubs, subs []string) {
	if userClient == "" {
		return nil, nil
	}
	pubs = []string{
		fmt.Sprintf("%s/s/%s/%s/%s", realm, scene, msgType, userClient),
		fmt.Sprintf("%s/s/%s/%s/%s/%s", realm, scene, msgType, userClient, privateDst),
	}
	subs = []string{
		fmt.Sprintf("%s/s/%s/%s/+/%s/#", realm, scene, msgType, userClient),
	}
	return pubs, subs
}

// AprilTagAccess: the global tag registry did not survive into v2.
func (v2Grammar) AprilTagAccess(realm string, authenticated bool) (pubs, subs []string) {
	return nil, nil
}

func (v2Grammar) RuntimeAccess(realm, userClient string) (pubs, subs []string) {
	subs = []string{fmt.Sprintf("%s/proc/reg", realm)}
	pubs = []string{
		fmt.Sprintf("%s/proc/reg", realm),
		fmt.Sprintf("%s/proc/control", realm),
	}
	if userClient != "" {
		subs = append(subs,
			fmt.Sprintf("%s/proc/control/%s/#", realm, userClient),
			fmt.Sprintf("%s/proc/debug/%s", realm, userClient),
		)
		pubs = append(pubs, fmt.Sprintf("%s/proc/debug/%s", realm, userClient))
	}
	return pubs, subs
}

func (v2Grammar) NetworkAccess(targeted bool) (pubs, subs []string) {
	pubs = []string{"$NETWORK/latency"}
	if !targeted {
		subs = []string{"$NETWORK"}
	}
	return pubs, subs
}

func (v2Grammar) ServiceReadAllSubs(realm string) []string {
	return []string{fmt.Sprintf("%s/s/#", realm)}
}

// namespaceOf returns the namespace portion of a "namespace/id" name.
func namespaceOf(name string) string {
	if i := strings.Index(name, "/"); i >= 0 {
		return name[:i]
	}
	return name
}
