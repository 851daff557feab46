// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package web

import "html/template"

// The client keeps no state of its own: it swaps in the server markup after every render and
// forwards events from any element carrying a node id.
var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<div id="pickle-root">{{.Body}}</div>
<script>
(function () {
    const pidAttr = {{.Pid}};
    const root = document.getElementById("pickle-root");
    const proto = location.protocol === "https:" ? "wss:" : "ws:";
    let ws = null;

    function connect() {
        ws = new WebSocket(proto + "//" + location.host + "/ws");
        ws.onopen = () => ws.send(JSON.stringify({ wscommand: "sync" }));
        ws.onmessage = (msg) => {
            const data = JSON.parse(msg.data);
            if (data.type === "ping") {
                ws.send(JSON.stringify({ type: "pong" }));
            } else if (data.type === "render") {
                const active = document.activeElement;
                const activePid = active ? active.getAttribute(pidAttr) : null;
                root.innerHTML = data.html;
                if (activePid) {
                    const again = root.querySelector("[" + pidAttr + '="' + activePid + '"]');
                    if (again) again.focus();
                }
            } else if (data.type === "error") {
                console.error("pickle:", data.error);
            }
        };
        ws.onclose = () => setTimeout(connect, 1000);
    }

    function forward(ev) {
        const target = ev.target.closest("[" + pidAttr + "]");
        if (!target || !ws || ws.readyState !== WebSocket.OPEN) return;
        if (ev.type === "submit") ev.preventDefault();
        ws.send(JSON.stringify({
            wscommand: "event",
            pid: parseInt(target.getAttribute(pidAttr), 10),
            event: {
                type: ev.type,
                value: target.value !== undefined ? String(target.value) : "",
                checked: !!target.checked,
                key: ev.key || "",
            },
        }));
    }

    for (const type of ["click", "dblclick", "input", "change", "keydown", "submit"]) {
        root.addEventListener(type, forward, true);
    }
    connect();
})();
</script>
</body>
</html>
`))
