package caststream

const viewerHTML = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: ui-monospace, Menlo, monospace; margin: 1.5rem; background: #111; color: #ddd; }
h1 { font-size: 1.1rem; margin: 0; }
.sub { color: #888; margin-bottom: 1rem; }
table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; padding: 2px 8px; white-space: nowrap; }
th { border-bottom: 1px solid #444; }
tr.err td { color: #f66; }
#footer { color: #888; margin-top: .75rem; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{if .OrgInfo}}<div class="sub">{{.OrgInfo}}</div>{{end}}
<table>
<thead><tr><th>Created</th><th>Mode</th><th>Depth</th><th>Duration</th><th>Message</th><th>Entity</th><th>Type</th></tr></thead>
<tbody id="rows"></tbody>
</table>
<div id="footer">waiting for data…</div>
<script>
(function () {
  var rows = document.getElementById("rows");
  var footer = document.getElementById("footer");
  function cell(tr, text) { var td = document.createElement("td"); td.textContent = text; tr.appendChild(td); }
  function show(view) {
    rows.textContent = "";
    (view.records || []).forEach(function (r) {
      var tr = document.createElement("tr");
      if (r.exceptionDetails) { tr.className = "err"; tr.title = r.exceptionDetails; }
      cell(tr, r.createdOn); cell(tr, r.mode); cell(tr, r.depth); cell(tr, r.durationMs + "ms");
      cell(tr, r.messageName); cell(tr, r.primaryEntity || "-"); cell(tr, r.typeName);
      rows.appendChild(tr);
    });
    var parts = ["page " + view.page + "/" + view.totalPages, view.buffered + " buffered"];
    if (view.hasMore) parts.push("more available");
    if (view.live) parts.push("live");
    if (view.error) parts.push("error: " + view.error);
    footer.textContent = parts.join(" • ");
  }
  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onmessage = function (ev) {
      var frame = JSON.parse(ev.data);
      if (frame.type === "view") show(frame.view);
    };
    ws.onclose = function () { footer.textContent = "disconnected, retrying…"; setTimeout(connect, 2000); };
  }
  connect();
})();
</script>
</body>
</html>
`
